// Package remote runs commands on the database hosts over SSH: volume
// serial resolution and filesystem freeze/thaw. Sessions are opened and
// torn down per discrete operation, never pooled.
package remote

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// Session is one remote shell connection.
type Session interface {
	// Output runs a command and returns its stdout.
	Output(cmd string) (string, error)
	// Run runs a command, discarding output. A nil return means the
	// remote command exited zero, which is the completion acknowledgment
	// for privileged freeze/thaw commands.
	Run(cmd string) error
	Close() error
}

// Dialer opens a Session on a host.
type Dialer interface {
	Dial(host string) (Session, error)
}

// SSHDialer dials password-authenticated SSH sessions.
type SSHDialer struct {
	User     string
	Password string
	Port     int
	Timeout  time.Duration
}

// Dial opens a connection to host. Host keys are not verified: the tool
// runs on a trusted management network against hosts it also receives
// credentials for, matching how the backup operator invokes it.
func (d *SSHDialer) Dial(host string) (Session, error) {
	port := d.Port
	if port == 0 {
		port = 22
	}
	timeout := d.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	cfg := &ssh.ClientConfig{
		User:            d.User,
		Auth:            []ssh.AuthMethod{ssh.Password(d.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	slog.Info("ssh_dial", "host", host, "user", d.User)

	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		slog.Error("ssh_dial_failed", "host", host, "error", err)
		return nil, errors.WithKind(errors.KindConnectivity, err)
	}

	return &sshSession{client: client, host: host}, nil
}

type sshSession struct {
	client *ssh.Client
	host   string
}

func (s *sshSession) Output(cmd string) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", errors.WithKind(errors.KindConnectivity, err)
	}
	defer sess.Close()

	var stdout bytes.Buffer
	sess.Stdout = &stdout

	if err := sess.Run(cmd); err != nil {
		slog.Error("ssh_command_failed", "host", s.host, "cmd", cmd, "error", err)
		return "", errors.Wrap(err, "remote command failed")
	}
	return stdout.String(), nil
}

func (s *sshSession) Run(cmd string) error {
	sess, err := s.client.NewSession()
	if err != nil {
		return errors.WithKind(errors.KindConnectivity, err)
	}
	defer sess.Close()

	if err := sess.Run(cmd); err != nil {
		slog.Error("ssh_command_failed", "host", s.host, "cmd", cmd, "error", err)
		return errors.Wrap(err, "remote command failed")
	}
	return nil
}

func (s *sshSession) Close() error {
	return s.client.Close()
}
