package remote

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// Runner executes a shell command on a remote host and returns its combined
// output.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

// SSHRunner runs commands over SSH with key authentication. A connection is
// dialed per command; probes run at most a few commands per tick and a held
// connection to a flaky host is worth less than a fresh dial.
type SSHRunner struct {
	logger *zap.Logger
	addr   string
	config *ssh.ClientConfig
}

// NewSSHRunner builds a runner for the given host from a private key file.
func NewSSHRunner(logger *zap.Logger, host string, port int, user, keyPath string) (*SSHRunner, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key %s: %w", keyPath, err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh key: %w", err)
	}

	return &SSHRunner{
		logger: logger.Named("ssh"),
		addr:   net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		config: &ssh.ClientConfig{
			User:            user,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         30 * time.Second,
		},
	}, nil
}

// Run executes one command. Cancelling the context tears the connection down
// so a hung remote host cannot stall the tick past its budget.
func (r *SSHRunner) Run(ctx context.Context, command string) (string, error) {
	client, err := ssh.Dial("tcp", r.addr, r.config)
	if err != nil {
		return "", fmt.Errorf("failed to dial %s: %w", r.addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	done := make(chan struct{})
	var out []byte
	var runErr error
	go func() {
		out, runErr = session.CombinedOutput(command)
		close(done)
	}()

	select {
	case <-ctx.Done():
		client.Close()
		<-done
		return "", ctx.Err()
	case <-done:
	}

	if runErr != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("remote command failed: %w", runErr)
	}
	return strings.TrimSpace(string(out)), nil
}
