// Package cache computes task fingerprints and stores results in a local
// content-addressed cache so unchanged work can be skipped.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/hsawada/monoflow/internal/model"
)

// Fingerprinter computes deterministic cache keys. Root is the workspace
// root all input patterns are resolved against.
type Fingerprinter struct {
	Root string

	group singleflight.Group
}

func NewFingerprinter(root string) *Fingerprinter {
	return &Fingerprinter{Root: root}
}

// Fingerprint computes the cache key for node: a sha256 digest over the
// command, sorted env, sorted content hashes of the files matching the
// node's inputs, and the sorted upstream keys. Including upstream keys
// means a change anywhere upstream invalidates every downstream entry even
// when the downstream's own files are untouched.
//
// Nodes sharing identical declarations share the computation via
// singleflight.
func (f *Fingerprinter) Fingerprint(node *model.TaskNode, upstreamKeys []string) (string, error) {
	// The flight key must cover every field the digest covers, env included,
	// or two nodes differing only in env would share one computation.
	flightKey := node.Dir + "\x00" + node.Command + "\x00" +
		strings.Join(sortedEnvPairs(node.Env), "\x00") + "\x00" +
		strings.Join(node.Inputs, "\x00") + "\x00" + strings.Join(sortedCopy(upstreamKeys), "\x00")

	v, err, _ := f.group.Do(flightKey, func() (any, error) {
		return f.compute(node, upstreamKeys)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (f *Fingerprinter) compute(node *model.TaskNode, upstreamKeys []string) (string, error) {
	h := sha256.New()

	// All components are length-prefixed to prevent ambiguity between
	// adjacent fields.
	writeField := func(data []byte) {
		length := uint64(len(data))
		h.Write([]byte{
			byte(length >> 56), byte(length >> 48), byte(length >> 40), byte(length >> 32),
			byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length),
		})
		h.Write(data)
	}

	writeField([]byte(node.Dir))
	writeField([]byte(node.Command))

	envKeys := make([]string, 0, len(node.Env))
	for k := range node.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	writeField([]byte{byte(len(envKeys))})
	for _, k := range envKeys {
		writeField([]byte(k))
		writeField([]byte(node.Env[k]))
	}

	files, err := resolveInputs(f.Root, node.Inputs)
	if err != nil {
		return "", fmt.Errorf("resolving inputs for %s: %w", node.ID, err)
	}
	for _, file := range files {
		content, err := os.ReadFile(filepath.Join(f.Root, filepath.FromSlash(file)))
		if err != nil {
			return "", fmt.Errorf("reading input %q: %w", file, err)
		}
		sum := sha256.Sum256(content)
		writeField([]byte(file))
		writeField(sum[:])
	}

	for _, key := range sortedCopy(upstreamKeys) {
		writeField([]byte(key))
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func sortedEnvPairs(env map[string]string) []string {
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

func sortedCopy(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}
