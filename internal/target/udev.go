package target

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"musicsync/internal/logging"
	"musicsync/internal/services"
)

// DiscoverFunc locates a mount point.
type DiscoverFunc func(ctx context.Context) (string, error)

// mountPollInterval covers the gap between the kernel announcing a device and
// the desktop automounter mounting it.
const mountPollInterval = 2 * time.Second

// WaitForDevice returns as soon as discover finds a device. While none is
// present it listens for udev block device "add" events and polls, giving up
// after timeout. An ambiguous result is returned immediately.
func WaitForDevice(ctx context.Context, timeout time.Duration, discover DiscoverFunc, logger *slog.Logger) (string, error) {
	logger = logging.NewComponentLogger(logger, "udev")
	mount, err := discover(ctx)
	if err == nil || !errors.Is(err, ErrNoDevice) {
		return mount, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	events := make(chan netlink.UEvent)
	errs := make(chan error)
	conn := new(netlink.UEventConn)
	if connErr := conn.Connect(netlink.UdevEvent); connErr != nil {
		logger.Warn("failed to connect to netlink socket; polling for the device instead",
			logging.Error(connErr),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the user may open netlink sockets"),
			logging.String(logging.FieldImpact, "device arrival is detected by polling"),
		)
	} else {
		defer conn.Close()
		quit := conn.Monitor(events, errs, blockAddMatcher())
		defer close(quit)
	}

	logger.Info("waiting for removable device",
		logging.String(logging.FieldEventType, "device_wait_started"),
		logging.Duration("timeout", timeout),
	)

	ticker := time.NewTicker(mountPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", services.Wrap(services.ErrDevice, component, "wait for device", "timed out after "+timeout.String(), ErrNoDevice)
		case ev := <-events:
			logger.Debug("block device added",
				logging.String("devname", ev.Env["DEVNAME"]),
				logging.String("devtype", ev.Env["DEVTYPE"]),
			)
		case monitorErr := <-errs:
			logger.Debug("netlink monitor error", logging.Error(monitorErr))
			continue
		case <-ticker.C:
		}

		mount, err := discover(waitCtx)
		switch {
		case err == nil:
			return mount, nil
		case waitCtx.Err() != nil:
			continue
		case !errors.Is(err, ErrNoDevice):
			return "", err
		}
	}
}

func blockAddMatcher() netlink.Matcher {
	action := "add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
		},
	})
	return rules
}
