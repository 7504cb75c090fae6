package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	studentsHandler := handlers.NewStudentsHandler(s.deps.Enroller, s.deps.Students, s.deps.History)
	teachersHandler := handlers.NewTeachersHandler(s.deps.Teachers, s.deps.Tokens)
	recognizeHandler := handlers.NewRecognizeHandler(s.deps.Recognizer)
	galleryHandler := handlers.NewGalleryHandler(s.deps.Rebuilder, s.deps.Gallery)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	if s.deps.Registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	}

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Students
		r.Post("/students", studentsHandler.Register)
		r.Post("/students/login", studentsHandler.Login)
		r.Get("/students/{rollNo}/attendance", studentsHandler.Attendance)

		// Teachers
		r.Post("/teachers", teachersHandler.Register)
		r.Post("/teachers/login", teachersHandler.Login)

		// Gallery
		r.Get("/gallery", galleryHandler.Stats)

		// Attendance capture and gallery maintenance require a teacher token
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireTeacher(s.deps.Tokens))

			r.Post("/recognize", recognizeHandler.Recognize)
			r.Post("/gallery/rebuild", galleryHandler.Rebuild)
		})
	})
}
