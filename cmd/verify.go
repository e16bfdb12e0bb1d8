package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contact-discovery/internal/discovery"
	"github.com/sells-group/contact-discovery/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <email>...",
	Short: "Check deliverability for one or more addresses",
	Long:  "Resolves each domain's mail exchanger, runs the catch-all probe, and issues an SMTP recipient check. No message is sent. Addresses on the same domain share one domain probe.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []verify.Option{verify.WithRateLimit(cfg.Verify.ProbeRateLimit)}
		if !cfg.Verify.AssumeValidOnDNSError {
			opts = append(opts, verify.WithStrictDNS())
		}
		verifier := verify.New(
			verify.NewNetResolver(cfg.Verify.DNSTimeout()),
			verify.NewDialProber(cfg.Verify.HelloDomain, cfg.Verify.MailFrom, cfg.Verify.SMTPTimeout()),
			opts...,
		)

		type checked struct {
			Email string `json:"email"`
			verify.Result
		}
		results := make([]checked, 0, len(args))
		for _, arg := range args {
			email := strings.ToLower(strings.TrimSpace(arg))
			if !discovery.ValidShape(email) {
				return eris.Errorf("invalid address shape: %s", email)
			}
			results = append(results, checked{Email: email, Result: verifier.Verify(cmd.Context(), email)})
		}

		out, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal results")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
