package remote

import (
	"context"
	"log/slog"
	"strings"

	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
)

// Runner resolves volume serials and freezes filesystems on database
// hosts. Every operation dials a fresh session and closes it on exit.
type Runner struct {
	dial Dialer
}

// NewRunner wires a Runner to a Dialer.
func NewRunner(d Dialer) *Runner {
	return &Runner{dial: d}
}

// Resolve maps a mount path on host to the serial number of the backing
// multipath device. The serial is what the storage array knows the volume
// by.
func (r *Runner) Resolve(ctx context.Context, host, mount string) (string, error) {
	sess, err := r.dial.Dial(host)
	if err != nil {
		return "", errors.Wrap(err, "session for volume resolution failed")
	}
	defer sess.Close()

	usage, err := sess.Output("df -h | grep " + mount)
	if err != nil {
		return "", errors.Wrap(err, "filesystem usage query failed")
	}
	device, err := ParseDevicePath(usage, mount)
	if err != nil {
		return "", err
	}

	meta, err := sess.Output("udevadm info --query=all --name=" + device + " | grep DM_SERIAL")
	if err != nil {
		return "", errors.Wrap(err, "device metadata query failed")
	}
	serial, err := ParseSerial(meta)
	if err != nil {
		return "", err
	}

	slog.Info("volume_resolved", "host", host, "mount", mount, "device", device, "serial", serial)
	return serial, nil
}

// Freeze suspends writes on the filesystem mounted at mount. The remote
// exit status is the completion acknowledgment.
func (r *Runner) Freeze(ctx context.Context, host, mount string) error {
	slog.Info("filesystem_freeze", "host", host, "mount", mount)

	sess, err := r.dial.Dial(host)
	if err != nil {
		return errors.Wrap(err, "session for freeze failed")
	}
	defer sess.Close()

	return errors.Wrap(sess.Run("/sbin/fsfreeze --freeze "+mount), "freeze failed")
}

// Thaw resumes writes on the filesystem mounted at mount.
func (r *Runner) Thaw(ctx context.Context, host, mount string) error {
	slog.Info("filesystem_thaw", "host", host, "mount", mount)

	sess, err := r.dial.Dial(host)
	if err != nil {
		return errors.Wrap(err, "session for thaw failed")
	}
	defer sess.Close()

	return errors.Wrap(sess.Run("/sbin/fsfreeze --unfreeze "+mount), "thaw failed")
}

// ParseDevicePath extracts the device path from df output: the first field
// of the first line whose mount column matches the requested path.
func ParseDevicePath(out, mount string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if fields[len(fields)-1] == mount || strings.Contains(line, mount) {
			return fields[0], nil
		}
	}
	return "", errors.Newf(errors.KindParse, "no filesystem matches mount %q in df output", mount)
}

// ParseSerial extracts the value of the DM_SERIAL property from udevadm
// output.
func ParseSerial(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "DM_SERIAL") {
			continue
		}
		_, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		serial := strings.Trim(strings.TrimSpace(value), `\'"`)
		if serial != "" {
			return serial, nil
		}
	}
	return "", errors.New(errors.KindParse, "no DM_SERIAL property in udevadm output")
}
