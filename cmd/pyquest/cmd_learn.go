package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/session"
)

func coursesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "courses [course-id]",
		Short: "List courses, or the lessons of one course",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCourses,
	}
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file.py>",
		Short: "Grade a solution against a lesson and record progress",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}
	f := cmd.Flags()
	f.StringP("course", "c", "python-basics", "Course id")
	f.StringP("lesson", "l", "", "Lesson id")
	f.String("backend", "", "Code runtime backend (local, docker)")
	_ = cmd.MarkFlagRequired("lesson")
	return cmd
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file.py>",
		Short: "Run a Python file, answering input() prompts from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	cmd.Flags().String("backend", "", "Code runtime backend (local, docker)")
	return cmd
}

func runCourses(cmd *cobra.Command, args []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	a, err := env.openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.Sessions.Progress(cmd.Context(), env.user())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		for _, c := range a.Lessons.ListCourses() {
			percent := 0.0
			if cp := store.Course(c.ID); cp != nil {
				percent = cp.ProgressPercent()
			}
			fmt.Fprintf(out, "%-20s %s %5.1f%%  %s\n", c.ID, renderProgressBar(percent/100, 20), percent, c.Title)
		}
		return nil
	}

	course, err := a.Lessons.GetCourse(args[0])
	if err != nil {
		return err
	}
	cp := store.Course(course.ID)

	fmt.Fprintf(out, "%s\n%s\n\n", course.Title, strings.Repeat("=", len(course.Title)))
	for i, l := range course.Lessons {
		mark := " "
		if cp != nil && cp.IsCompleted(l.ID) {
			mark = "✓"
		}
		fmt.Fprintf(out, "%s %2d. %-20s %s (%d XP)\n", mark, i+1, l.ID, l.Title, l.BaseXP)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	code, err := readSource(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := env.openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sub, err := a.Sessions.Submit(cmd.Context(), env.user(), env.v.GetString("course"), env.v.GetString("lesson"), code)
	if err != nil {
		return err
	}

	printSubmission(cmd.OutOrStdout(), sub)
	return nil
}

// readSource reads the file named by args, or stdin when no file or "-" is given
func readSource(args []string, stdin io.Reader) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}

func printSubmission(out io.Writer, sub *session.Submission) {
	result := sub.Result

	fmt.Fprintf(out, "Score: %d/%d %s\n", result.Score, result.MaxScore, renderProgressBar(float64(result.Score)/float64(max(result.MaxScore, 1)), 20))
	for _, tr := range result.TestResults {
		mark := "✗"
		if tr.Passed {
			mark = "✓"
		}
		fmt.Fprintf(out, "  %s %s (%d/%d)\n", mark, tr.Description, tr.EarnedPoints, tr.Points)
	}

	if result.Error != "" {
		fmt.Fprintf(out, "\nError:\n%s\n", result.Error)
	}
	if len(result.Feedback) > 0 {
		fmt.Fprintln(out)
		for _, f := range result.Feedback {
			fmt.Fprintf(out, "%s\n", f)
		}
	}
	for _, s := range result.Suggestions {
		fmt.Fprintf(out, "💡 %s\n", s)
	}

	if !result.CanComplete {
		fmt.Fprintf(out, "\nReach %d to complete the lesson.\n", domain.PassThreshold)
		return
	}

	fmt.Fprintln(out)
	if sub.Completion != nil && sub.Completion.FirstCompletion {
		xp := sub.Completion.XP
		fmt.Fprintf(out, "Lesson complete! +%d XP\n", result.XPEarned)
		if xp.LeveledUp {
			fmt.Fprintf(out, "Level up! You are now level %d, %s\n", xp.NewLevel, xp.NewTitle)
		}
	} else {
		fmt.Fprintln(out, "Lesson already complete.")
	}

	var unlocked []domain.Achievement
	if sub.Completion != nil {
		unlocked = append(unlocked, sub.Completion.Unlocked...)
	}
	if sub.Streak != nil {
		if sub.Streak.StreakUpdated {
			fmt.Fprintf(out, "🔥 Streak: %d days\n", sub.Streak.NewStreak)
		}
		unlocked = append(unlocked, sub.Streak.Unlocked...)
	}
	printUnlocked(out, unlocked)

	if sub.NextLesson != "" {
		fmt.Fprintf(out, "Next lesson: %s\n", sub.NextLesson)
	}
}

func printUnlocked(out io.Writer, unlocked []domain.Achievement) {
	for _, a := range unlocked {
		fmt.Fprintf(out, "🏆 Achievement unlocked: %s (+%d XP)\n", a.Name, a.XPReward)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	code, err := readSource(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := env.openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	user := env.user()
	out := cmd.OutOrStdout()
	input := bufio.NewReader(cmd.InOrStdin())

	outcome, err := a.Sessions.Run(ctx, user, code)
	printed := 0
	for err == nil && outcome.Result.WaitingForInput {
		// Output covers the whole execution; print only what is new. The
		// prompt is reported apart and shows up in Output once answered.
		printed = printFrom(out, outcome.Result.Output, printed)
		fmt.Fprint(out, outcome.Result.Prompt)
		printed += len(outcome.Result.Prompt)

		line, readErr := input.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("read input: %w", readErr)
		}
		if errors.Is(readErr, io.EOF) && line == "" {
			return errors.New("program is waiting for input but stdin is closed")
		}

		outcome, err = a.Sessions.Continue(ctx, user, strings.TrimRight(line, "\r\n"))
	}
	if err != nil {
		return err
	}

	printFrom(out, outcome.Result.Output, printed)
	if outcome.Result.Error != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", outcome.Result.Error)
	}
	printUnlocked(out, outcome.Unlocked)
	return nil
}

// printFrom writes output[from:] and returns the new offset
func printFrom(out io.Writer, output string, from int) int {
	if from < len(output) {
		fmt.Fprint(out, output[from:])
	}
	return max(from, len(output))
}
