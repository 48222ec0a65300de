// Package artifact stores rendered deployment scripts per package.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ScriptName is the artifact name of the generated deployment script.
const ScriptName = "Deploy-Application.ps1"

var ErrNotFound = errors.New("artifact: not found")

// Store persists artifacts by package id and name.
type Store interface {
	Put(ctx context.Context, packageID, name string, content []byte) error
	Get(ctx context.Context, packageID, name string) ([]byte, error)
	// GetURL returns a download URL, or "" when the backend has none.
	GetURL(ctx context.Context, packageID, name string) (string, error)
	List(ctx context.Context, packageID string) ([]string, error)
	// Delete removes every artifact of a package.
	Delete(ctx context.Context, packageID string) error
}

func cleanID(packageID string) (string, error) {
	id := strings.TrimSpace(packageID)
	if id == "" {
		return "", fmt.Errorf("artifact: package id is required")
	}
	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("artifact: invalid package id %q", id)
	}
	return id, nil
}

func cleanName(name string) (string, error) {
	n := strings.TrimLeft(strings.TrimSpace(strings.ReplaceAll(name, `\`, "/")), "/")
	if n == "" {
		return "", fmt.Errorf("artifact: name is required")
	}
	for _, part := range strings.Split(n, "/") {
		if part == ".." {
			return "", fmt.Errorf("artifact: invalid name %q", name)
		}
	}
	return path.Clean(n), nil
}

func objectKey(packageID, name string) (string, error) {
	id, err := cleanID(packageID)
	if err != nil {
		return "", err
	}
	n, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return id + "/" + n, nil
}
