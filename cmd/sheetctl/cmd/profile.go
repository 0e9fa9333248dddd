package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetsmith/sheetsmith/internal/entitlement"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

type profileView struct {
	*model.Profile
	BetaStatus entitlement.BetaStatus `json:"beta_status"`
	Usage      entitlement.Usage      `json:"usage"`
}

func newProfileView(p *model.Profile, now time.Time) profileView {
	return profileView{Profile: p, BetaStatus: p.BetaStatus(), Usage: p.Usage(now)}
}

// printProfile writes p in the command's output format.
func printProfile(cmd *cobra.Command, p *model.Profile) error {
	v := newProfileView(p, time.Now().UTC())
	out := cmd.OutOrStdout()
	if outputFormat(cmd) == "json" {
		return printJSON(out, v)
	}
	return writeProfile(out, v)
}

func writeProfile(w io.Writer, v profileView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", v.ID)
	fmt.Fprintf(tw, "email\t%s\n", v.Email)
	fmt.Fprintf(tw, "tier\t%s\n", v.Tier)
	fmt.Fprintf(tw, "beta\t%s\n", v.BetaStatus)
	fmt.Fprintf(tw, "usage\t%d / %s\n", v.Usage.Used, v.Usage.Limit)
	fmt.Fprintf(tw, "resets\t%s\n", v.Usage.ResetsAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "admin\t%t\n", v.IsAdmin)
	fmt.Fprintf(tw, "verified\t%t\n", v.EmailVerified)
	fmt.Fprintf(tw, "created\t%s\n", v.CreatedAt.Format(time.RFC3339))
	return tw.Flush()
}

func writeProfileTable(w io.Writer, profiles []*model.Profile, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tTIER\tBETA\tUSED\tLIMIT\tADMIN")
	for _, p := range profiles {
		u := p.Usage(now)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%t\n",
			p.ID, p.Email, p.Tier, p.BetaStatus(), u.Used, u.Limit, p.IsAdmin)
	}
	return tw.Flush()
}
