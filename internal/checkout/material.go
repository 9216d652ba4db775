package checkout

import (
	"fmt"
	"os"
	"path/filepath"
)

// SSHMaterial holds the on-disk trust material used for authenticated
// fetches: a private key and a pinned known-hosts file, written once at
// startup into a dedicated directory under the process temp dir.
//
// The known-hosts file is the sole trust source; the user's ~/.ssh and the
// system trust store are never consulted, so host-key verification cannot
// silently succeed against an unknown host.
type SSHMaterial struct {
	dir            string
	keyPath        string
	knownHostsPath string
}

// WriteSSHMaterial writes the decoded key and known-hosts bytes to owner-only
// files. Either may be empty, in which case the corresponding ssh option is
// omitted; plain-HTTP clone URLs need neither.
func WriteSSHMaterial(key, knownHosts []byte) (*SSHMaterial, error) {
	if len(key) == 0 && len(knownHosts) == 0 {
		return &SSHMaterial{}, nil
	}

	dir, err := os.MkdirTemp("", "gfc-ssh-")
	if err != nil {
		return nil, fmt.Errorf("creating ssh material directory: %w", err)
	}

	m := &SSHMaterial{dir: dir}

	if len(key) > 0 {
		m.keyPath = filepath.Join(dir, "id_key")
		if err := os.WriteFile(m.keyPath, key, 0o600); err != nil {
			m.Cleanup()
			return nil, fmt.Errorf("writing ssh key: %w", err)
		}
	}

	if len(knownHosts) > 0 {
		m.knownHostsPath = filepath.Join(dir, "known_hosts")
		if err := os.WriteFile(m.knownHostsPath, knownHosts, 0o600); err != nil {
			m.Cleanup()
			return nil, fmt.Errorf("writing known hosts: %w", err)
		}
	}

	return m, nil
}

// GitSSHCommand renders the GIT_SSH_COMMAND value that pins the identity and
// trust material. Returns "" when no material is configured.
func (m *SSHMaterial) GitSSHCommand() string {
	if m.keyPath == "" && m.knownHostsPath == "" {
		return ""
	}

	cmd := "ssh -o BatchMode=yes -o StrictHostKeyChecking=yes"
	if m.keyPath != "" {
		cmd += fmt.Sprintf(" -o IdentitiesOnly=yes -i %s", m.keyPath)
	}
	if m.knownHostsPath != "" {
		cmd += fmt.Sprintf(" -o UserKnownHostsFile=%s", m.knownHostsPath)
	}
	return cmd
}

// Cleanup removes the material directory and everything in it.
func (m *SSHMaterial) Cleanup() {
	if m.dir != "" {
		os.RemoveAll(m.dir)
	}
}
