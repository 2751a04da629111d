package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jroosing/hydraproxy/internal/socket"
	mdns "github.com/miekg/dns"
	"github.com/spf13/cobra"
)

type queryFlags struct {
	server  string
	name    string
	qtype   string
	timeout time.Duration
}

func newQueryCmd() *cobra.Command {
	f := new(queryFlags)
	cmd := &cobra.Command{
		Use:   "query [--server ip:port] [--name example.com] [--type A]",
		Short: "Send one query over UDP and print the answers.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuery(cmd.OutOrStdout(), f)
		},
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}
	fs := cmd.Flags()
	fs.StringVar(&f.server, "server", "127.0.0.1:1053", "DNS server ip[:port]")
	fs.StringVar(&f.name, "name", "example.com", "query name")
	fs.StringVar(&f.qtype, "type", "A", "query type mnemonic (A, AAAA, MX, ...)")
	fs.DurationVar(&f.timeout, "timeout", 2*time.Second, "timeout")
	return cmd
}

func runQuery(w io.Writer, f *queryFlags) error {
	addr, err := socket.ParseAddrPort(f.server)
	if err != nil {
		return err
	}
	if strings.TrimSpace(f.name) == "" {
		return errors.New("name required")
	}
	qtype, ok := mdns.StringToType[strings.ToUpper(f.qtype)]
	if !ok {
		return fmt.Errorf("unknown query type %q", f.qtype)
	}

	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(f.name), qtype)
	c := &mdns.Client{Net: "udp", Timeout: f.timeout}
	resp, rtt, err := c.Exchange(m, addr.String())
	if err != nil {
		return fmt.Errorf("query %s: %w", addr, err)
	}

	fmt.Fprintf(w, "id=%d rcode=%s answers=%d authorities=%d additionals=%d rtt=%s\n",
		resp.Id,
		mdns.RcodeToString[resp.Rcode],
		len(resp.Answer),
		len(resp.Ns),
		len(resp.Extra),
		rtt.Round(time.Microsecond),
	)
	rows := make([]string, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		rows = append(rows, strings.ReplaceAll(rr.String(), "\t", " "))
	}
	sort.Strings(rows)
	for _, s := range rows {
		fmt.Fprintln(w, s)
	}
	return nil
}
