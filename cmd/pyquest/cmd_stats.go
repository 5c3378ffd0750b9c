package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show XP, level, streak and course progress",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
}

func achievementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "achievements",
		Short: "List achievements",
		Args:  cobra.NoArgs,
		RunE:  runAchievements,
	}
	cmd.Flags().Bool("unlocked", false, "Only show unlocked achievements")
	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
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
	snap := store.Snapshot()
	p := snap.Profile
	out := cmd.OutOrStdout()

	levelXP := p.XP - (p.Level-1)*domain.XPPerLevel
	fmt.Fprintf(out, "%s, level %d\n", p.Title, p.Level)
	fmt.Fprintf(out, "XP:      %d %s %d to next level\n", p.XP, renderProgressBar(float64(levelXP)/domain.XPPerLevel, 20), p.XPToNextLevel())
	fmt.Fprintf(out, "Streak:  %d days (longest %d)\n", p.Streak, snap.Stats.LongestStreak)
	fmt.Fprintf(out, "Lessons: %d completed\n", snap.Stats.LessonsCompleted)
	fmt.Fprintf(out, "Tools:   %d built, %d lines of code\n", p.ToolsBuilt, p.LinesOfCode)
	fmt.Fprintf(out, "Runs:    %d\n", snap.Stats.CodeRuns)

	if len(snap.Courses) > 0 {
		fmt.Fprintln(out, "\nCourses")
		for _, c := range a.Lessons.ListCourses() {
			cp, ok := snap.Courses[c.ID]
			if !ok {
				continue
			}
			fmt.Fprintf(out, "  %-20s %s %5.1f%%\n", c.ID, renderProgressBar(cp.ProgressPercent()/100, 20), cp.ProgressPercent())
		}
	}

	if len(snap.Stats.ErrorPatterns) > 0 {
		fmt.Fprintln(out, "\nCommon errors")
		type pattern struct {
			name  string
			count int
		}
		patterns := make([]pattern, 0, len(snap.Stats.ErrorPatterns))
		for name, count := range snap.Stats.ErrorPatterns {
			patterns = append(patterns, pattern{name, count})
		}
		sort.Slice(patterns, func(i, j int) bool {
			if patterns[i].count != patterns[j].count {
				return patterns[i].count > patterns[j].count
			}
			return patterns[i].name < patterns[j].name
		})
		for _, pt := range patterns {
			fmt.Fprintf(out, "  %-20s %d\n", pt.name, pt.count)
		}
	}
	return nil
}

func runAchievements(cmd *cobra.Command, _ []string) error {
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

	onlyUnlocked := env.v.GetBool("unlocked")
	all := store.Achievements()
	unlocked := 0
	out := cmd.OutOrStdout()
	for _, ach := range all {
		if ach.Unlocked {
			unlocked++
		} else if onlyUnlocked {
			continue
		}

		mark := "🔒"
		if ach.Unlocked {
			mark = "🏆"
		}
		fmt.Fprintf(out, "%s %-20s %-10s %s\n", mark, ach.Name, ach.Rarity, ach.Description)
	}
	fmt.Fprintf(out, "\n%d/%d unlocked\n", unlocked, len(all))
	return nil
}
