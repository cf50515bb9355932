package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/san-kum/dsfeas/internal/model"
)

// ExecOptions configure an external solver process.
type ExecOptions struct {
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Env     []string      `mapstructure:"env"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Exec runs a solver process per solve: the problem Document goes to its
// stdin and a Reply is read from its stdout.
type Exec struct {
	opts ExecOptions
}

func NewExec(opts ExecOptions) (*Exec, error) {
	if opts.Command == "" {
		return nil, model.Configf("solver exec", "command is required")
	}
	if opts.Timeout < 0 {
		return nil, model.Configf("solver exec", "timeout must not be negative")
	}
	return &Exec{opts: opts}, nil
}

func (e *Exec) Name() string { return "exec:" + e.opts.Command }

func (e *Exec) Solve(ctx context.Context, p *model.Problem) (*Result, error) {
	data, err := json.Marshal(NewDocument(p))
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.opts.Command, e.opts.Args...)
	cmd.Stdin = bytes.NewReader(data)
	if len(e.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), e.opts.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, fmt.Errorf("solver %s timed out after %s: %w", e.opts.Command, e.opts.Timeout, ctxErr)
			}
			return nil, ctxErr
		}
		return nil, fmt.Errorf("run solver %s: %w: %s", e.opts.Command, err, strings.TrimSpace(stderr.String()))
	}

	var reply Reply
	if err := json.Unmarshal(stdout.Bytes(), &reply); err != nil {
		return nil, fmt.Errorf("decode reply from %s: %w", e.opts.Command, err)
	}
	if err := reply.Apply(p); err != nil {
		return nil, err
	}
	return reply.Result(), nil
}

func decodeOptions(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return model.Configf("solver options", "%v", err)
	}
	return nil
}
