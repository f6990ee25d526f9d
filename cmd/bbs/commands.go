package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/Sternrassler/bbs-client/pkg/board"
	"github.com/spf13/cobra"
)

func newLoginCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username> <password>",
		Short: "Log in and store the session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFn().board.Login(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", args[0])
			return err
		},
	}
}

func newLogoutCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := appFn().board.Logout(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return err
		},
	}
}

func newSignupCmd(appFn func() *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "signup <username> <password>",
		Short: "Register a new account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := appFn().board.Signup(cmd.Context(), args[0], args[1], email)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "registered %s (id %d)\n", user.Username, user.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newWhoamiCmd(appFn func() *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := appFn().board.Me(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, user)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> role=%s\n", user.Username, user.Email, user.Role)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newBoardsCmd(appFn func() *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "boards",
		Short: "List boards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			boards, err := appFn().board.ListBoards(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, boards)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tWRITER\tHITS\tCREATED")
			for _, b := range boards {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", b.ID, b.BoardTitle, b.BoardWriter, b.BoardHits, b.CreatedAt)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newBoardCmd(appFn func() *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "board <id>",
		Short: "Show one board with its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			b, err := appFn().board.GetBoard(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, b)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "#%d %s\nby %s, %d hits, %s\n\n%s\n", b.ID, b.BoardTitle, b.BoardWriter, b.BoardHits, b.CreatedAt, b.BoardContents)
			for _, f := range b.Files {
				fmt.Fprintf(out, "  file: %s %s\n", f.FileName, f.FileURL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newThreadCmd(appFn func() *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "thread <boardId>",
		Short: "Show the comments of a board with reply counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			thread, err := appFn().board.Thread(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, thread)
			}
			comments := append([]board.Comment(nil), thread.Comments...)
			sort.Slice(comments, func(i, j int) bool { return comments[i].ID < comments[j].ID })
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWRITER\tREPLIES\tCOMMENT")
			for _, cm := range comments {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", cm.ID, cm.CommentWriter, thread.ReplyCounts[cm.ID], cm.CommentContents)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newUploadCmd(appFn func() *app) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload files and print their URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]board.File, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				files = append(files, board.File{Name: filepath.Base(path), Data: data})
			}

			var progress board.ProgressFunc
			if !quiet {
				progress = func(pct int) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\ruploading %3d%%", pct)
					if pct == 100 {
						fmt.Fprintln(cmd.ErrOrStderr())
					}
				}
			}

			var results []board.UploadResult
			if len(files) == 1 {
				res, err := appFn().board.UploadFile(cmd.Context(), files[0], progress)
				if err != nil {
					return err
				}
				results = []board.UploadResult{*res}
			} else {
				var err error
				results, err = appFn().board.UploadFiles(cmd.Context(), files, progress)
				if err != nil {
					return err
				}
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.FileName, r.FileURL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no progress output")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
