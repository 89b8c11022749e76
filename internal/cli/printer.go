package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	yaml "gopkg.in/yaml.v3"

	"github.com/sufield/securechain/internal/buildinfo"
	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/errors"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgYellow)
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow, color.Bold)
)

func validFormat(f string) bool {
	return f == formatText || f == formatJSON || f == formatYAML
}

// Printer renders command results as colored text or as JSON or YAML documents.
type Printer struct {
	out    io.Writer
	format string
}

// NewPrinter creates a printer. Unknown formats fall back to text.
func NewPrinter(out io.Writer, format string) *Printer {
	if !validFormat(format) {
		format = formatText
	}
	return &Printer{out: out, format: format}
}

// Message prints a message exchanged with the server under a heading such as "GET /api/secure/message".
func (p *Printer) Message(heading string, m domain.Message) error {
	if p.format != formatText {
		return p.emit(map[string]interface{}{
			"request":   heading,
			"content":   m.Content,
			"sender":    m.Sender,
			"timestamp": m.Timestamp.Format(time.RFC3339Nano),
		})
	}
	headerColor.Fprintln(p.out, heading)
	p.field("content", m.Content)
	p.field("sender", m.Sender)
	p.field("timestamp", m.Timestamp.Format(time.RFC3339Nano))
	return nil
}

// Health prints a health snapshot.
func (p *Printer) Health(heading string, h domain.HealthStatus) error {
	if p.format != formatText {
		return p.emit(map[string]interface{}{
			"request":          heading,
			"status":           string(h.Status),
			"timestamp":        h.Timestamp.Format(time.RFC3339Nano),
			"tlsEnabled":       h.TLSEnabled,
			"chainDescription": h.ChainDescription,
		})
	}
	headerColor.Fprintln(p.out, heading)
	labelColor.Fprintf(p.out, "  %-17s ", "status:")
	if h.IsUp() {
		successColor.Fprintln(p.out, h.Status)
	} else {
		errorColor.Fprintln(p.out, h.Status)
	}
	p.field("timestamp", h.Timestamp.Format(time.RFC3339Nano))
	p.field("tlsEnabled", fmt.Sprintf("%t", h.TLSEnabled))
	p.field("chainDescription", h.ChainDescription)
	return nil
}

// Anchors prints the trust anchors of a trust store.
func (p *Printer) Anchors(source string, anchors []domain.AnchorInfo) error {
	if p.format != formatText {
		return p.emit(map[string]interface{}{
			"source":  source,
			"count":   len(anchors),
			"anchors": anchors,
		})
	}

	headerColor.Fprintf(p.out, "Trust store %s: %d anchor(s)\n", source, len(anchors))
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBJECT\tCA\tSELF-SIGNED\tNOT AFTER\tSTATUS")
	for _, a := range anchors {
		status := "valid"
		if a.Expired {
			status = "EXPIRED"
		}
		fmt.Fprintf(tw, "%s\t%t\t%t\t%s\t%s\n",
			a.Subject, a.IsCA, a.SelfSigned, a.NotAfter.UTC().Format(time.RFC3339), status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, a := range anchors {
		if !a.IsCA {
			warnColor.Fprintf(p.out, "warning: %s is not a CA certificate and can only match itself\n", a.Subject)
		}
	}
	return nil
}

// ChainVerified reports a chain accepted by offline verification.
func (p *Printer) ChainVerified(subjects []string) error {
	if p.format != formatText {
		return p.emit(map[string]interface{}{"verified": true, "chain": subjects})
	}
	successColor.Fprintln(p.out, "Chain verified")
	for i, s := range subjects {
		fmt.Fprintf(p.out, "  %d: %s\n", i, s)
	}
	return nil
}

// ChainRejected reports a chain rejected by offline verification.
func (p *Printer) ChainRejected(cause *errors.ChainValidationError) error {
	if p.format != formatText {
		return p.emit(map[string]interface{}{
			"verified": false,
			"reason":   cause.Reason,
			"subject":  cause.Subject,
		})
	}
	errorColor.Fprintf(p.out, "Chain rejected: %s\n", cause.Reason)
	if cause.Subject != "" {
		p.field("subject", cause.Subject)
	}
	if cause.Err != nil {
		p.field("detail", cause.Err.Error())
	}
	return nil
}

// Version prints build information.
func (p *Printer) Version(info buildinfo.Info) error {
	if p.format != formatText {
		return p.emit(info)
	}
	p.field("Version", info.Version)
	p.field("Commit", info.CommitHash)
	p.field("Build Time", info.BuildTime)
	p.field("Go Version", info.GoVersion)
	p.field("Platform", info.Platform)
	return nil
}

func (p *Printer) field(label, value string) {
	labelColor.Fprintf(p.out, "  %-17s ", label+":")
	fmt.Fprintln(p.out, value)
}

func (p *Printer) emit(v interface{}) error {
	switch p.format {
	case formatYAML:
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode YAML output: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
		return nil
	}
}
