package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/auth"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/imagestore"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// backend is the storage selected by DATABASE_DRIVER.
type backend struct {
	students   enrollment.Storage
	teachers   database.TeacherStore
	attendance attendance.Store
	close      func() error
}

// openBackend connects to the configured database and applies migrations.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	switch cfg.Database.Driver {
	case "postgres":
		slog.Info("connecting to PostgreSQL")
		pool, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return &backend{
			students:   postgres.NewStudentRepository(pool),
			teachers:   postgres.NewTeacherRepository(pool),
			attendance: postgres.NewAttendanceRepository(pool),
			close:      pool.Close,
		}, nil
	case "mysql":
		slog.Info("connecting to MariaDB")
		pool, err := mariadb.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		return &backend{
			students:   mariadb.NewStudentRepository(pool),
			teachers:   mariadb.NewTeacherRepository(pool),
			attendance: mariadb.NewAttendanceRepository(pool),
			close:      pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func (b *backend) Close() {
	if err := b.close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}

// services is the fully wired engine shared by the commands.
type services struct {
	backend    *backend
	embedder   *embedder.Client
	gallery    *gallery.Store
	pipeline   *enrollment.Pipeline
	ledger     *attendance.Ledger
	recognizer *recognition.Service
	metrics    *metrics.Metrics
}

// buildServices wires the engine on top of an open backend. A nil registry
// leaves metrics disabled.
func buildServices(cfg *config.Config, b *backend, registry *prometheus.Registry) (*services, error) {
	logger := slog.Default()

	var met *metrics.Metrics
	if registry != nil {
		var err error
		if met, err = metrics.New(registry); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	faces, err := matcher.ParseFacePolicy(cfg.Match.FacePolicy)
	if err != nil {
		return nil, err
	}
	policy := matcher.Policy{
		Threshold:     cfg.Match.Threshold,
		MinConfidence: cfg.Match.MinConfidence,
		MaxConfidence: cfg.Match.MaxConfidence,
		Faces:         faces,
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Attendance.Location()
	if err != nil {
		return nil, err
	}

	client := embedder.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout, cfg.Embedding.MaxImageSize)
	store := gallery.New(client, gallery.Options{
		Dim:     cfg.Embedding.Dim,
		Workers: cfg.Gallery.Workers,
		Logger:  logger,
	})
	pipeline := enrollment.New(enrollment.Deps{
		Storage:  b.students,
		Images:   imagestore.New(cfg.Gallery.FacesDir),
		Gallery:  store,
		Embedder: client,
		Metrics:  met,
		Logger:   logger,
	})
	ledger := attendance.NewLedger(b.attendance, attendance.Options{
		Location: loc,
		Timeout:  cfg.Database.Timeout,
		Logger:   logger,
	})

	return &services{
		backend:    b,
		embedder:   client,
		gallery:    store,
		pipeline:   pipeline,
		ledger:     ledger,
		recognizer: recognition.New(client, matcher.New(store, policy), ledger, met, logger),
		metrics:    met,
	}, nil
}

// newTokenIssuer creates the teacher token issuer from JWT_SECRET.
func newTokenIssuer(cfg *config.Config) (*auth.TokenIssuer, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}
	return auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
}
