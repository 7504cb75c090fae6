package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/auth"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var teacherCmd = &cobra.Command{
	Use:   "teacher",
	Short: "Manage teacher accounts",
}

var teacherCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a teacher account",
	Long: `Create a teacher account that can log in and record attendance.

The password is read from --password or the TEACHER_PASSWORD environment variable.

Example:
  TEACHER_PASSWORD=secret face-attendance teacher create --name "Jane Doe" --email jane@school.example`,
	Args: cobra.NoArgs,
	RunE: runTeacherCreate,
}

func init() {
	rootCmd.AddCommand(teacherCmd)
	teacherCmd.AddCommand(teacherCreateCmd)

	teacherCreateCmd.Flags().String("name", "", "Teacher name (required)")
	teacherCreateCmd.Flags().String("email", "", "Login email (required)")
	teacherCreateCmd.Flags().String("password", "", "Login password (defaults to TEACHER_PASSWORD)")
	_ = teacherCreateCmd.MarkFlagRequired("name")
	_ = teacherCreateCmd.MarkFlagRequired("email")
}

func runTeacherCreate(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(mustGetString(cmd, "name"))
	email := strings.ToLower(strings.TrimSpace(mustGetString(cmd, "email")))
	password := mustGetString(cmd, "password")
	if password == "" {
		password = os.Getenv("TEACHER_PASSWORD")
	}

	if name == "" {
		return errors.New("--name must not be empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email %q: %w", email, err)
	}
	if password == "" {
		return errors.New("password is required (--password or TEACHER_PASSWORD)")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	teacher, err := b.teachers.CreateTeacher(ctx, database.StoredTeacher{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	})
	if errors.Is(err, database.ErrDuplicate) {
		return fmt.Errorf("a teacher with email %s already exists", email)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Created teacher %s <%s> (id %d)\n", teacher.Name, teacher.Email, teacher.ID)
	return nil
}
