package toolbake

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/session"
)

// Reply is one JSON Lines response of a Runner in JSON mode.
type Reply struct {
	SessionID string        `json:"session_id"`
	Outputs   domain.Values `json:"outputs,omitempty"`
	Values    domain.Values `json:"values,omitempty"`
	Logs      []string      `json:"logs,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// runJSON reads JSON Lines. An object is a patch of input widgets; the
// strings "run", "show" and "quit" are commands. Each patch or run is
// answered with the outputs once the session settles.
func (r *Runner) runJSON(ctx context.Context, sess *session.Session, lines <-chan string) error {
	enc := json.NewEncoder(r.Output)
	reply := func(rep Reply) error {
		rep.SessionID = sess.ID()
		return enc.Encode(rep)
	}

	for {
		var text string
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-lines:
			if !ok {
				return nil
			}
			text = strings.TrimSpace(t)
		}
		if text == "" {
			continue
		}

		var cmd string
		if err := json.Unmarshal([]byte(text), &cmd); err != nil {
			cmd = text
		}

		switch cmd {
		case "quit", "exit":
			return nil
		case "show":
			if err := reply(Reply{Values: sess.Values()}); err != nil {
				return err
			}
			continue
		case "run":
			if err := sess.Run(); err != nil {
				return err
			}
			if err := r.replySettled(ctx, sess, reply); err != nil {
				return err
			}
			continue
		}

		var patch domain.Patch
		if err := json.Unmarshal([]byte(text), &patch); err != nil {
			if err := reply(Reply{Error: "invalid input: " + err.Error()}); err != nil {
				return err
			}
			continue
		}
		changed, err := sess.EditMany(patch)
		if errors.Is(err, domain.ErrUnknownWidget) || errors.Is(err, domain.ErrMergeContract) {
			if err := reply(Reply{Error: err.Error()}); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if len(changed) == 0 {
			continue
		}
		if err := r.replySettled(ctx, sess, reply); err != nil {
			return err
		}
	}
}

func (r *Runner) replySettled(ctx context.Context, sess *session.Session, reply func(Reply) error) error {
	if err := sess.Wait(ctx); err != nil {
		return err
	}
	rep := Reply{Outputs: domain.Values{}}
	values := sess.Values()
	for _, id := range sess.Tool().Outputs() {
		rep.Outputs[id] = values[id]
	}
	if st := sess.Status(); st.LastRun != nil {
		for _, l := range st.LastRun.Logs {
			rep.Logs = append(rep.Logs, l.Message)
		}
		if st.LastRun.State == domain.RunFailed {
			rep.Error = st.LastRun.Error
		}
	}
	return reply(rep)
}
