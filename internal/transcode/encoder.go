package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"musicsync/internal/logging"
	"musicsync/internal/services"
)

const (
	// InputPlaceholder is replaced with the source file path.
	InputPlaceholder = "{input}"
	// OutputPlaceholder is replaced with the destination file path.
	OutputPlaceholder = "{output}"

	stderrTailLines = 20
)

var commandContext = exec.CommandContext

// Encoder runs one external executable to re-encode a file.
type Encoder struct {
	ExecutablePath string
	Arguments      []string
	logger         *slog.Logger
}

// NewEncoder returns an encoder invoking executable with the argument template.
func NewEncoder(executable string, arguments []string, logger *slog.Logger) *Encoder {
	return &Encoder{
		ExecutablePath: executable,
		Arguments:      append([]string(nil), arguments...),
		logger:         logging.NewComponentLogger(logger, "encoder"),
	}
}

// Args returns the argument list with placeholders substituted.
func (e *Encoder) Args(input, output string) []string {
	args := make([]string, len(e.Arguments))
	replacer := strings.NewReplacer(InputPlaceholder, input, OutputPlaceholder, output)
	for i, arg := range e.Arguments {
		args[i] = replacer.Replace(arg)
	}
	return args
}

// Transcode encodes input into output. A start failure, non-zero exit, or a
// run that leaves no output file is reported as services.ErrTranscode.
func (e *Encoder) Transcode(ctx context.Context, input, output string) error {
	if strings.TrimSpace(e.ExecutablePath) == "" {
		return services.Wrap(services.ErrTranscode, "encoder", "start", "encoder path not configured", nil)
	}
	args := e.Args(input, output)

	var stderr bytes.Buffer
	cmd := commandContext(ctx, e.ExecutablePath, args...)
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), tail(stderr.String(), stderrTailLines))
		}
		return services.Wrap(services.ErrTranscode, "encoder", "run", input, err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return services.Wrap(services.ErrTranscode, "encoder", "verify output", input, fmt.Errorf("no output produced: %w", err))
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrTranscode, "encoder", "verify output", input, errors.New("output is empty"))
	}

	e.logger.Debug("encoder finished",
		logging.String(logging.FieldSourcePath, input),
		logging.Duration("elapsed", time.Since(start)),
		logging.Int64("output_bytes", info.Size()),
	)
	return nil
}

func tail(text string, lines int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "(no stderr)"
	}
	parts := strings.Split(trimmed, "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, "\n")
}
