package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/imagestore"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <folder-path>",
	Short: "Bulk enroll students from a folder of photos",
	Long: `Enroll every student found in a folder. Each subdirectory is named after a
roll number and holds that student's face photos:

  students/
    CS-001/front.jpg
    CS-001/side.jpg
    CS-002/photo.png

Students that are already enrolled are skipped. The gallery is rebuilt once
after all students have been processed.

Example:
  face-attendance enroll ./students --class 10A --department Science`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.Flags().String("class", "", "Class assigned to every enrolled student")
	enrollCmd.Flags().String("department", "", "Department assigned to every enrolled student")
}

type enrollSummary struct {
	enrolled, duplicates, noFaces int
	faces                         int
	failed                        []string
}

func runEnroll(cmd *cobra.Command, args []string) error {
	folderPath := args[0]
	class := mustGetString(cmd, "class")
	department := mustGetString(cmd, "department")

	info, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("cannot access folder %s: %w", folderPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", folderPath)
	}

	source := imagestore.New(folderPath)
	dirs, err := source.List()
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		fmt.Println("No student folders with photos found")
		return nil
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

	svc, err := buildServices(cfg, b, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Found %d students in %s\n", len(dirs), folderPath)
	bar := progressbar.NewOptions(len(dirs),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("students"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var sum enrollSummary
	for _, dir := range dirs {
		err := enrollDir(ctx, svc.pipeline, source, dir, class, department, &sum)
		_ = bar.Add(1)
		if err != nil {
			// Storage or embedder outages would fail every following student too.
			fmt.Println()
			return err
		}
	}
	fmt.Println()

	fmt.Printf("Enrolled %d students with %d faces\n", sum.enrolled, sum.faces)
	if sum.duplicates > 0 {
		fmt.Printf("Skipped %d already enrolled students\n", sum.duplicates)
	}
	if sum.noFaces > 0 {
		fmt.Printf("Skipped %d students without a detectable face\n", sum.noFaces)
	}
	for _, f := range sum.failed {
		fmt.Printf("  - %s\n", f)
	}

	if sum.enrolled == 0 {
		return nil
	}
	fmt.Println("Rebuilding gallery...")
	snap, err := svc.pipeline.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild gallery: %w", err)
	}
	stats := snap.Stats()
	fmt.Printf("Gallery holds %d faces of %d students\n", stats.Entries, stats.Identities)
	return nil
}

// enrollDir registers one student folder. Only errors that would repeat for
// every other student are returned.
func enrollDir(
	ctx context.Context, pipeline *enrollment.Pipeline, source *imagestore.Store,
	dir imagestore.Dir, class, department string, sum *enrollSummary,
) error {
	images := make([][]byte, 0, len(dir.Paths))
	for _, p := range dir.Paths {
		data, err := source.Read(p)
		if err != nil {
			sum.failed = append(sum.failed, fmt.Sprintf("%s: %v", p, err))
			continue
		}
		images = append(images, data)
	}

	faces, err := pipeline.Register(ctx, enrollment.Enrollment{
		Identity:   dir.Identity,
		Name:       dir.Identity,
		Class:      class,
		Department: department,
		Images:     images,
	})
	switch {
	case err == nil:
		sum.enrolled++
		sum.faces += faces
	case errors.Is(err, enrollment.ErrDuplicateIdentity):
		sum.duplicates++
	case errors.Is(err, enrollment.ErrNoValidFaces):
		sum.noFaces++
		sum.failed = append(sum.failed, dir.Identity+": no valid faces")
	case errors.Is(err, enrollment.ErrInvalidEnrollment):
		sum.failed = append(sum.failed, fmt.Sprintf("%s: %v", dir.Identity, err))
	default:
		return fmt.Errorf("enroll %s: %w", dir.Identity, err)
	}
	return nil
}
