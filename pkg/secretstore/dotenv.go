package secretstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/subosito/gotenv"
)

func parseSingleFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	parsed, err := gotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return parsed, nil
}

// loadChain loads dir's dotenv chain in override order: .env,
// .env.<environment>, .env.local, .env.<environment>.local. Missing files
// are skipped, not an error; a directory with no dotenv files at all
// returns an empty map.
func loadChain(dir, environment string) (map[string]string, error) {
	vars := map[string]string{}
	names := []string{".env"}
	if environment != "" {
		names = append(names, ".env."+environment)
	}
	names = append(names, ".env.local")
	if environment != "" {
		names = append(names, ".env."+environment+".local")
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		parsed, err := gotenv.Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for k, v := range parsed {
			vars[k] = v
		}
	}
	return vars, nil
}

// parseEnvBytes parses dotenv-format content held in memory rather than
// read from a path.
func parseEnvBytes(data []byte, vars map[string]string) error {
	parsed, err := gotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return err
	}
	for k, v := range parsed {
		vars[k] = v
	}
	return nil
}
