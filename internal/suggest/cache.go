package suggest

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tailview/internal/model"
	"tailview/internal/util/logx"
)

// cacheDir returns a directory under the OS temp dir to store suggested
// rule sets.
func cacheDir() string {
	return filepath.Join(os.TempDir(), "tailview-rules-cache")
}

// cacheKey derives a stable key from the log group name.
func cacheKey(group string) (string, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return "", errors.New("empty group")
	}
	h := sha1.Sum([]byte(group))
	return hex.EncodeToString(h[:]), nil
}

// LoadCachedRules attempts to read previously suggested rules for a group.
func LoadCachedRules(group string) ([]model.LevelRule, bool) {
	key, err := cacheKey(group)
	if err != nil {
		return nil, false
	}
	p := filepath.Join(cacheDir(), fmt.Sprintf("rules_%s.json", key))
	f, err := os.Open(p)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	var rules []model.LevelRule
	if err := json.NewDecoder(f).Decode(&rules); err != nil || len(rules) == 0 {
		return nil, false
	}
	return rules, true
}

// SaveCachedRules writes suggested rules to cache keyed by group name.
func SaveCachedRules(group string, rules []model.LevelRule) error {
	key, err := cacheKey(group)
	if err != nil {
		return err
	}
	dir := cacheDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	p := filepath.Join(dir, fmt.Sprintf("rules_%s.json", key))
	tmp := p + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rules); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		return err
	}
	logx.Infof("suggest: cached rules saved to %s", p)
	return nil
}
