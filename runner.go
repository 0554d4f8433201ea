package toolbake

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/session"
)

// Runner drives a session from a line-oriented input.
// This allows for easy testing and integration with different frontends (CLI, pipes).
//
// Each line is one of:
//
//	<widget>=<value>   edit an input widget (JSON values are decoded)
//	run                force a run
//	show               print every widget value
//	quit | exit        stop
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer

	// JSON reads and writes JSON Lines instead of commands.
	JSON bool

	// Lines, when set, replaces Input. It lets several runs share one reader.
	Lines <-chan string
}

// ContentRenderer transforms output text before it is written.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// NewRunner creates a Runner. Input and Output must be set before Run.
func NewRunner() *Runner {
	return &Runner{}
}

// Lines pumps r line by line until EOF, a read error or ctx ends.
func Lines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		br := bufio.NewReader(r)
		for {
			text, err := br.ReadString('\n')
			if text != "" {
				select {
				case ch <- text:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

// Run reads commands until EOF, quit or ctx ends.
func (r *Runner) Run(ctx context.Context, sess *session.Session) error {
	if r.Input == nil && r.Lines == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	if sess == nil {
		return fmt.Errorf("session must be set")
	}
	lines := r.Lines
	if lines == nil {
		pumpCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		lines = Lines(pumpCtx, r.Input)
	}
	if r.JSON {
		return r.runJSON(ctx, sess, lines)
	}
	w := r.Output

	if !r.Headless {
		fmt.Fprintf(w, "--- %s ---\n", title(sess.Tool()))
		for _, def := range sess.Tool().Widgets {
			if def.Role == domain.RoleInput {
				fmt.Fprintf(w, "  %s (%s)\n", def.ID, def.Kind)
			}
		}
	}

	for {
		if !r.Headless {
			fmt.Fprint(w, "> ")
		}
		var text string
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-lines:
			if !ok {
				return nil
			}
			text = t
		}
		line := strings.TrimSpace(text)

		switch {
		case line == "":
		case line == "quit" || line == "exit":
			if !r.Headless {
				fmt.Fprintln(w, "Bye!")
			}
			return nil
		case line == "show":
			r.printValues(sess, sess.Tool().WidgetIDs())
		case line == "run":
			if err := sess.Run(); err != nil {
				return err
			}
			if err := r.Settle(ctx, sess); err != nil {
				return err
			}
		default:
			id, raw, ok := strings.Cut(line, "=")
			if !ok {
				fmt.Fprintf(w, "unknown command %q\n", line)
				break
			}
			changed, err := sess.Edit(strings.TrimSpace(id), parseValue(raw))
			if errors.Is(err, domain.ErrUnknownWidget) || errors.Is(err, domain.ErrMergeContract) {
				fmt.Fprintf(w, "error: %v\n", err)
				break
			}
			if err != nil {
				return err
			}
			if len(changed) > 0 {
				if err := r.Settle(ctx, sess); err != nil {
					return err
				}
			}
		}
	}
}

// Settle waits for the dispatcher to go idle and prints outputs or the failure.
func (r *Runner) Settle(ctx context.Context, sess *session.Session) error {
	if err := sess.Wait(ctx); err != nil {
		return err
	}
	st := sess.Status()
	if st.LastRun != nil && st.LastRun.State == domain.RunFailed {
		fmt.Fprintf(r.Output, "error: %s\n", st.LastRun.Error)
		return nil
	}
	r.printValues(sess, sess.Tool().Outputs())
	return nil
}

func (r *Runner) printValues(sess *session.Session, ids []string) {
	values := sess.Values()
	for _, id := range ids {
		v, ok := values[id]
		if !ok || v == nil {
			continue
		}
		out := format(v)
		if r.Renderer != nil {
			if rendered, err := r.Renderer(out); err == nil {
				out = strings.TrimSpace(rendered)
			}
		}
		fmt.Fprintf(r.Output, "%s: %s\n", id, out)
	}
}

func title(t *domain.Tool) string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// parseValue decodes JSON scalars, arrays and objects. Anything else is text.
func parseValue(raw string) any {
	raw = strings.TrimSpace(raw)
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func format(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + format(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
