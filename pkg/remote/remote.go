// Package remote talks to the cluster front node: one SSH connection per
// logical operation, commands over an exec session, files over SFTP.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"contaminer/pkg/config"
	"contaminer/pkg/errutil"

	"github.com/pkg/sftp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Channel is the command and file-transfer endpoint on the cluster.
//
// Transport failures are reported as errutil.ErrRemoteUnavailable. Anything
// the remote side writes to stderr fails the call with
// errutil.ErrRemoteExecution.
type Channel interface {
	Execute(ctx context.Context, command string) (string, error)
	ReadFile(ctx context.Context, remotePath string) ([]byte, error)
	WriteFile(ctx context.Context, remotePath string, content []byte) error
	UploadFile(ctx context.Context, localPath, remoteDir string) (string, error)
	DownloadFile(ctx context.Context, remotePath, localPath string) error
}

var Module = fx.Module("remote",
	fx.Provide(
		fx.Annotate(NewFromConfig, fx.As(new(Channel))),
		NewCluster,
	),
)

func NewFromConfig(cfg *config.Config) (*SSHChannel, error) {
	if err := cfg.ValidateCluster(); err != nil {
		return nil, err
	}
	return NewSSHChannel(cfg.SSH)
}

// SSHChannel implements Channel. It holds no connection between calls.
type SSHChannel struct {
	addr    string
	timeout time.Duration
	client  *ssh.ClientConfig
}

func NewSSHChannel(cfg config.SSHConfig) (*SSHChannel, error) {
	clientConfig, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}

	return &SSHChannel{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		timeout: cfg.Timeout,
		client:  clientConfig,
	}, nil
}

func clientConfig(cfg config.SSHConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.IdentityFile != "" {
		key, err := os.ReadFile(cfg.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("read identity file: %w", err)
		}

		var signer ssh.Signer
		if cfg.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(cfg.Password))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("parse identity file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh: neither IDENTITY_FILE nor PASSWORD is configured")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		zap.L().Warn("[SSH] KNOWN_HOSTS_FILE not set, host key is not verified", zap.String("host", cfg.Host))
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	}, nil
}

func (c *SSHChannel) dial(ctx context.Context) (*ssh.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, errutil.RemoteUnavailable("dial "+c.addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, c.addr, c.client)
	if err != nil {
		_ = conn.Close()
		return nil, errutil.RemoteUnavailable("ssh handshake with "+c.addr, err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// do runs fn on a fresh connection, closed when fn returns or when ctx is
// done, whichever comes first.
func (c *SSHChannel) do(ctx context.Context, fn func(*ssh.Client) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	client, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	err = fn(client)
	if err != nil && ctx.Err() != nil {
		return errutil.RemoteUnavailable("remote operation aborted", ctx.Err())
	}
	return err
}

func (c *SSHChannel) Execute(ctx context.Context, command string) (string, error) {
	var stdout string
	err := c.do(ctx, func(client *ssh.Client) error {
		session, err := client.NewSession()
		if err != nil {
			return errutil.RemoteUnavailable("open ssh session", err)
		}
		defer session.Close()

		var out, errOut bytes.Buffer
		session.Stdout = &out
		session.Stderr = &errOut

		zap.L().Debug("[SSH] exec", zap.String("command", command))
		runErr := session.Run(command)
		stdout = out.String()
		return commandResult(command, errOut.String(), runErr)
	})
	if err != nil {
		return "", err
	}
	return stdout, nil
}

// commandResult classifies the outcome of one exec round trip. Any stderr
// output fails the command, whatever the exit status.
func commandResult(command, stderr string, runErr error) error {
	if strings.TrimSpace(stderr) != "" {
		return errutil.RemoteExecution(
			"remote command wrote to stderr",
			errors.New(strings.TrimSpace(stderr)),
			errutil.WithDetails(errutil.Detail{Field: "command", Message: command}),
		)
	}
	if runErr == nil {
		return nil
	}

	var exitErr *ssh.ExitError
	var missing *ssh.ExitMissingError
	if errors.As(runErr, &exitErr) || errors.As(runErr, &missing) {
		return errutil.RemoteExecution("remote command failed", runErr,
			errutil.WithDetails(errutil.Detail{Field: "command", Message: command}))
	}
	return errutil.RemoteUnavailable("remote command interrupted", runErr)
}

func (c *SSHChannel) withSFTP(ctx context.Context, fn func(*sftp.Client) error) error {
	return c.do(ctx, func(client *ssh.Client) error {
		sc, err := sftp.NewClient(client)
		if err != nil {
			return errutil.RemoteUnavailable("open sftp subsystem", err)
		}
		defer sc.Close()
		return fn(sc)
	})
}

func (c *SSHChannel) ReadFile(ctx context.Context, remotePath string) ([]byte, error) {
	var content []byte
	err := c.withSFTP(ctx, func(sc *sftp.Client) error {
		f, err := sc.Open(remotePath)
		if err != nil {
			return sftpError("open "+remotePath, err)
		}
		defer f.Close()

		content, err = io.ReadAll(f)
		if err != nil {
			return sftpError("read "+remotePath, err)
		}
		return nil
	})
	return content, err
}

func (c *SSHChannel) WriteFile(ctx context.Context, remotePath string, content []byte) error {
	return c.withSFTP(ctx, func(sc *sftp.Client) error {
		zap.L().Info("[SFTP] write remote file", zap.String("remote_path", remotePath))
		f, err := sc.Create(remotePath)
		if err != nil {
			return sftpError("create "+remotePath, err)
		}
		defer f.Close()

		if _, err := f.Write(content); err != nil {
			return sftpError("write "+remotePath, err)
		}
		return nil
	})
}

func (c *SSHChannel) UploadFile(ctx context.Context, localPath, remoteDir string) (string, error) {
	remotePath := path.Join(remoteDir, filepath.Base(localPath))

	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	err = c.withSFTP(ctx, func(sc *sftp.Client) error {
		zap.L().Info("[SFTP] send file", zap.String("local_path", localPath), zap.String("remote_path", remotePath))
		dst, err := sc.Create(remotePath)
		if err != nil {
			return sftpError("create "+remotePath, err)
		}
		defer dst.Close()

		if _, err := dst.ReadFrom(src); err != nil {
			return sftpError("upload "+remotePath, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return remotePath, nil
}

func (c *SSHChannel) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	return c.withSFTP(ctx, func(sc *sftp.Client) error {
		zap.L().Info("[SFTP] get file", zap.String("remote_path", remotePath), zap.String("local_path", localPath))
		src, err := sc.Open(remotePath)
		if err != nil {
			return sftpError("open "+remotePath, err)
		}
		defer src.Close()

		dst, err := os.Create(localPath)
		if err != nil {
			return err
		}

		if _, err := src.WriteTo(dst); err != nil {
			_ = dst.Close()
			return sftpError("download "+remotePath, err)
		}
		return dst.Close()
	})
}

// sftpError keeps status replies from the server (missing file, permission)
// apart from transport failures.
func sftpError(op string, err error) error {
	var status *sftp.StatusError
	if errors.As(err, &status) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return errutil.RemoteExecution(op, err)
	}
	return errutil.RemoteUnavailable(op, err)
}
