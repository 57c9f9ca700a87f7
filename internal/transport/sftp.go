package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPConfig holds the connection settings for DialSFTP.
type SFTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	KnownHostsFile string
	DialTimeout    time.Duration
	Root           string
	Collision      CollisionPolicy
}

// SFTPStore is a RemoteStore over an SFTP session.
type SFTPStore struct {
	client    *sftp.Client
	ssh       *ssh.Client
	root      string
	collision CollisionPolicy
	logger    *slog.Logger
}

// DialSFTP opens an SSH connection with password auth and starts an SFTP session on it.
func DialSFTP(ctx context.Context, cfg SFTPConfig, logger *slog.Logger) (*SFTPStore, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	hostKeys, err := hostKeyCallback(cfg.KnownHostsFile, logger)
	if err != nil {
		return nil, wrap("dial", addr, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: hostKeys,
		Timeout:         cfg.DialTimeout,
	}

	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, wrap("dial", addr, err)
	}

	start := time.Now()
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		_ = conn.Close()
		return nil, wrap("handshake", addr, err)
	}
	sshClient := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, wrap("session", addr, err)
	}

	logger.Info("sftp connected",
		"addr", addr,
		"user", cfg.Username,
		"root", cfg.Root,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	root := cfg.Root
	if root == "" {
		if root, err = client.RealPath("."); err != nil {
			_ = client.Close()
			_ = sshClient.Close()
			return nil, wrap("realpath", ".", err)
		}
	}

	store := NewSFTPStore(client, root, cfg.Collision, logger)
	store.ssh = sshClient
	return store, nil
}

func hostKeyCallback(knownHostsFile string, logger *slog.Logger) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		logger.Warn("SFTP_KNOWN_HOSTS not set; host key verification disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}
	return cb, nil
}

// NewSFTPStore wraps an existing client. Paths are resolved against root.
func NewSFTPStore(client *sftp.Client, root string, collision CollisionPolicy, logger *slog.Logger) *SFTPStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SFTPStore{client: client, root: root, collision: collision, logger: logger}
}

func (s *SFTPStore) resolve(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(s.root, p)
}

func (s *SFTPStore) EnsureDir(_ context.Context, dir string) error {
	full := s.resolve(dir)
	info, err := s.client.Stat(full)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return wrap("mkdir", full, fmt.Errorf("%w: not a directory", fs.ErrExist))
	case !errors.Is(err, fs.ErrNotExist):
		return wrap("stat", full, err)
	}
	if err := s.client.Mkdir(full); err != nil {
		// Another process may have created it between Stat and Mkdir.
		if info, statErr := s.client.Stat(full); statErr == nil && info.IsDir() {
			return nil
		}
		return wrap("mkdir", full, err)
	}
	s.logger.Info("created remote directory", "dir", full)
	return nil
}

func (s *SFTPStore) List(_ context.Context, dir string) ([]Entry, error) {
	full := s.resolve(dir)
	infos, err := s.client.ReadDir(full)
	if err != nil {
		return nil, wrap("list", full, err)
	}
	out := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		out = append(out, Entry{
			Name:    fi.Name(),
			IsDir:   fi.IsDir(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	return out, nil
}

func (s *SFTPStore) Open(_ context.Context, p string) (io.ReadCloser, error) {
	full := s.resolve(p)
	f, err := s.client.Open(full)
	if err != nil {
		return nil, wrap("open", full, err)
	}
	return f, nil
}

func (s *SFTPStore) Move(_ context.Context, src, dst string) error {
	from, to := s.resolve(src), s.resolve(dst)

	if s.collision == CollisionOverwrite {
		if err := s.client.PosixRename(from, to); err != nil {
			return wrap("move", from, err)
		}
		return nil
	}

	if _, err := s.client.Stat(to); err == nil {
		return wrap("move", to, ErrDestinationExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return wrap("stat", to, err)
	}
	if err := s.client.Rename(from, to); err != nil {
		return wrap("move", from, err)
	}
	return nil
}

func (s *SFTPStore) Close() error {
	var errs []error
	if err := s.client.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, err)
	}
	if s.ssh != nil {
		if err := s.ssh.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
