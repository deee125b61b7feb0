package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-streams/pkg/streams"
)

var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "List declared streams with their role permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Root().Version)
		if err != nil {
			return err
		}
		defer func() { _ = a.logger.Sync() }()

		printStreams(os.Stdout, a.streams)
		return nil
	},
}

var letterColors = map[rune]*color.Color{
	'r': color.New(color.FgGreen),
	'x': color.New(color.FgBlue),
	'w': color.New(color.FgYellow),
	'c': color.New(color.FgCyan),
	'd': color.New(color.FgRed),
	'p': color.New(color.FgMagenta),
}

func colorPerms(perms string) string {
	var b strings.Builder
	for _, l := range perms {
		if c, ok := letterColors[l]; ok {
			b.WriteString(c.Sprint(string(l)))
		} else {
			b.WriteRune(l)
		}
	}
	return b.String()
}

func printStreams(w io.Writer, registry *streams.Registry) {
	bold := color.New(color.Bold)
	for _, s := range registry.Streams() {
		fmt.Fprintf(w, "%s  %s (max %d)\n", bold.Sprint(s.ID), s.Title, s.MaxLimit)

		roles := make([]string, 0, len(s.Permissions))
		for role := range s.Permissions {
			roles = append(roles, role)
		}
		sort.Strings(roles)
		for _, role := range roles {
			fmt.Fprintf(w, "   - %s: %s\n", role, colorPerms(s.Permissions[role]))
		}

		actions := make([]string, 0, len(s.Actions))
		for _, act := range s.Actions {
			actions = append(actions, act.Name)
		}
		fmt.Fprintf(w, "   actions: %s\n", strings.Join(actions, ", "))
	}
}
