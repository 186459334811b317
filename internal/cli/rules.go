package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/devya-app/devya"
	"github.com/devya-app/devya/domain"
	"github.com/spf13/cobra"
)

func newRulesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the rule directories and files of the backend",
	}

	dirs := &cobra.Command{
		Use:   "dirs",
		Short: "List rule directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, appOptions{backend: true}, func(app *devya.App) error {
				dirs, err := app.GetRuleDirs(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), g.output, dirs, func(w io.Writer) error {
					fmt.Fprintln(w, "ID\tNAME\tUPDATED")
					printDirs(w, dirs, 0)
					return nil
				})
			})
		},
	}

	files := &cobra.Command{
		Use:   "files",
		Short: "List rule files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, appOptions{backend: true}, func(app *devya.App) error {
				files, err := app.GetRuleFiles(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), g.output, files, func(w io.Writer) error {
					fmt.Fprintln(w, "ID\tNAME\tPARENT\tUPDATED")
					for _, file := range files {
						name := file.Name
						if file.IsDir {
							name += "/"
						}
						fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", file.ID, name, optionalID(file.ParentID), file.UpdatedAt.Format("2006-01-02 15:04"))
					}
					return nil
				})
			})
		},
	}

	var dirID, dirParent int
	upsertDir := &cobra.Command{
		Use:   "upsert-dir NAME",
		Short: "Create a rule directory, or rename it with --id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := domain.RuleDirInput{Name: args[0]}
			if cmd.Flags().Changed("id") {
				input.ID = &dirID
			}
			if cmd.Flags().Changed("parent") {
				input.ParentID = &dirParent
			}
			return g.withApp(cmd, appOptions{backend: true}, func(app *devya.App) error {
				id, err := app.UpsertRuleDir(cmd.Context(), input)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	upsertDir.Flags().IntVar(&dirID, "id", 0, "id of the directory to update")
	upsertDir.Flags().IntVar(&dirParent, "parent", 0, "id of the parent directory")

	var fileID, fileParent int
	var fileIsDir bool
	upsertFile := &cobra.Command{
		Use:   "upsert-file NAME",
		Short: "Create a rule file, or rename it with --id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := domain.RuleFileInput{Name: args[0], IsDir: fileIsDir}
			if cmd.Flags().Changed("id") {
				input.ID = &fileID
			}
			if cmd.Flags().Changed("parent") {
				input.ParentID = &fileParent
			}
			return g.withApp(cmd, appOptions{backend: true}, func(app *devya.App) error {
				id, err := app.UpsertRuleFile(cmd.Context(), input)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	upsertFile.Flags().IntVar(&fileID, "id", 0, "id of the file to update")
	upsertFile.Flags().IntVar(&fileParent, "parent", 0, "id of the parent directory")
	upsertFile.Flags().BoolVar(&fileIsDir, "dir", false, "create a folder entry")

	deleteFile := &cobra.Command{
		Use:   "delete-file ID",
		Short: "Delete a rule file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.withApp(cmd, appOptions{backend: true}, func(app *devya.App) error {
				return app.DeleteRuleFile(cmd.Context(), id)
			})
		},
	}

	cat := &cobra.Command{
		Use:   "cat ID",
		Short: "Print the content of a rule file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.withApp(cmd, appOptions{backend: true}, func(app *devya.App) error {
				content, err := app.GetRuleFileContent(cmd.Context(), id)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), content)
				return err
			})
		},
	}

	write := &cobra.Command{
		Use:   "write ID",
		Short: "Replace the content of a rule file with stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			content, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading rule content : %w", err)
			}
			return g.withApp(cmd, appOptions{backend: true}, func(app *devya.App) error {
				return app.UpdateRuleFileContent(cmd.Context(), id, string(content))
			})
		},
	}

	cmd.AddCommand(dirs, files, upsertDir, upsertFile, deleteFile, cat, write)
	return cmd
}

func printDirs(w io.Writer, dirs []*domain.RuleDir, depth int) {
	for _, dir := range dirs {
		fmt.Fprintf(w, "%d\t%s%s\t%s\n", dir.ID, strings.Repeat("  ", depth), dir.Name, dir.UpdatedAt.Format("2006-01-02 15:04"))
		printDirs(w, dir.Dirs, depth+1)
	}
}

func optionalID(id *int) string {
	if id == nil {
		return "-"
	}
	return strconv.Itoa(*id)
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}
