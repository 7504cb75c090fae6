package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance <roll-no>",
	Short: "List the attendance records of a student",
	Long: `List every attendance record of a student, newest first.

Example:
  face-attendance attendance CS-001
  face-attendance attendance CS-001 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAttendance,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAttendance(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

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

	svc, err := buildServices(cfg, b, nil)
	if err != nil {
		return err
	}

	identity := attendance.NormalizeIdentity(args[0])
	student, err := b.students.GetStudent(ctx, identity)
	if err != nil {
		return err
	}
	if student == nil {
		return fmt.Errorf("student %s is not enrolled", identity)
	}

	records, err := svc.ledger.History(ctx, identity)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	fmt.Printf("%s (%s), %d records\n", student.Name, student.RollNo, len(records))
	if len(records) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Printf("%-10s  %-8s  %-12s  %-16s  %s\n", "DATE", "TIME", "CLASS", "SUBJECT", "CONFIDENCE")
	for _, r := range records {
		fmt.Printf("%-10s  %-8s  %-12s  %-16s  %d%%\n",
			r.Key.Day, r.Time.Format("15:04:05"), r.Key.ClassCode, r.Key.Subject, r.Confidence)
	}
	return nil
}
