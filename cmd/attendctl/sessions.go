package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"classattend/internal/identity"
	"classattend/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session management commands",
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Schedule a class session",
	Long: `Schedule a class session owned by a faculty id. Times are either
RFC 3339 instants, or HH:MM together with --date, read in SESSION_TIMEZONE.

Examples:
  attendctl sessions create --subject "Operating Systems" --faculty FAC0001 \
    --date 2025-03-10 --start 09:00 --end 10:00
  attendctl sessions create --subject Compilers --faculty FAC0001 \
    --start 2025-03-10T09:00:00Z --end 2025-03-10T10:00:00Z`,
	Args: cobra.NoArgs,
	RunE: runSessionsCreate,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsCreateCmd, sessionsListCmd)

	sessionsCreateCmd.Flags().String("subject", "", "Subject label (required)")
	sessionsCreateCmd.Flags().String("faculty", "", "Owning faculty id (required)")
	sessionsCreateCmd.Flags().String("date", "", "Date as YYYY-MM-DD when --start/--end are HH:MM")
	sessionsCreateCmd.Flags().String("start", "", "Start time (required)")
	sessionsCreateCmd.Flags().String("end", "", "End time (required)")
	sessionsCreateCmd.Flags().Float64("lat", 0, "Latitude (optional)")
	sessionsCreateCmd.Flags().Float64("lng", 0, "Longitude (optional)")
	for _, f := range []string{"subject", "faculty", "start", "end"} {
		_ = sessionsCreateCmd.MarkFlagRequired(f)
	}

	sessionsListCmd.Flags().String("faculty", "", "Only sessions owned by this faculty id")
}

func runSessionsCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	req := session.CreateRequest{
		Subject:   mustGetString(cmd, "subject"),
		FacultyID: identity.NormalizeFacultyID(mustGetString(cmd, "faculty")),
		Date:      mustGetString(cmd, "date"),
		StartTime: mustGetString(cmd, "start"),
		EndTime:   mustGetString(cmd, "end"),
	}
	if cmd.Flags().Changed("lat") {
		lat := mustGetFloat64(cmd, "lat")
		req.Latitude = &lat
	}
	if cmd.Flags().Changed("lng") {
		lng := mustGetFloat64(cmd, "lng")
		req.Longitude = &lng
	}

	sess, err := session.NewService(db, loc).Create(ctx, req)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(sess)
	}
	fmt.Printf("Created session %s\n", sess.ID)
	fmt.Printf("  Subject: %s\n", sess.Subject)
	fmt.Printf("  Faculty: %s\n", sess.FacultyID)
	fmt.Printf("  Window:  %s to %s\n", sess.Start.Format(time.RFC3339), sess.End.Format(time.RFC3339))
	return nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	_, db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := session.NewService(db, time.UTC).List(ctx, identity.NormalizeFacultyID(mustGetString(cmd, "faculty")))
	if err != nil {
		return err
	}
	if jsonOutput {
		if sessions == nil {
			sessions = []session.Session{}
		}
		return printJSON(sessions)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %-24s %s  %s to %s\n", s.ID, s.Subject, s.FacultyID,
			s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
	}
	return nil
}
