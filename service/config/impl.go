package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	Service = fx.Provide(New)
)

type Impl struct {
	env  string
	data map[string]interface{}
}

type Params struct {
	fx.In

	Env           string `name:"environment"`
	ConfigMapPath string `name:"configMapPath"`
	VaultPath     string `name:"vaultPath" optional:"true"`
	Logger        *zap.Logger
}

func New(p Params) Config {
	paths := []string{p.ConfigMapPath}
	if p.VaultPath != "" {
		paths = append(paths, p.VaultPath)
	}

	data, err := LoadAndMergeFiles(paths...)
	if err != nil {
		p.Logger.Error("error reading and merging config files",
			zap.Strings("paths", paths),
			zap.Error(err),
		)
		data = make(map[string]interface{})
	}

	return NewFromMap(p.Env, data)
}

// NewFromMap builds a Config over an already merged map.
func NewFromMap(env string, data map[string]interface{}) Config {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Impl{
		env:  env,
		data: data,
	}
}

// LoadAndMergeFiles loads all JSON or YAML files from the given paths and merges them into a single map.
// Later paths win on conflicting keys.
func LoadAndMergeFiles(paths ...string) (map[string]interface{}, error) {
	mergedMap := make(map[string]interface{})

	for _, path := range paths {
		err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}

			ext := strings.ToLower(filepath.Ext(filePath))
			if ext != ".json" && ext != ".yaml" && ext != ".yml" {
				return nil
			}

			fileData, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}

			var fileMap map[string]interface{}
			if ext == ".json" {
				if err := json.Unmarshal(fileData, &fileMap); err != nil {
					return fmt.Errorf("error parsing JSON file %s: %w", filePath, err)
				}
			} else {
				if err := yaml.Unmarshal(fileData, &fileMap); err != nil {
					return fmt.Errorf("error parsing YAML file %s: %w", filePath, err)
				}
			}

			mergedMap = mergeMaps(mergedMap, fileMap)
			return nil
		})

		if err != nil {
			return nil, err
		}
	}

	return mergedMap, nil
}

// mergeMaps recursively merges two maps
func mergeMaps(dst, src map[string]interface{}) map[string]interface{} {
	for key, value := range src {
		existing, ok := dst[key]
		if !ok {
			dst[key] = value
			continue
		}

		existingMap, ok := existing.(map[string]interface{})
		if !ok {
			dst[key] = value
			continue
		}
		if valueMap, ok := value.(map[string]interface{}); ok {
			dst[key] = mergeMaps(existingMap, valueMap)
		} else {
			dst[key] = value
		}
	}

	return dst
}

func (im *Impl) Get(key string) (interface{}, error) {
	if envValue, exist := im.data[im.env]; exist {
		if envMap, ok := envValue.(map[string]interface{}); ok {
			if value, exist := envMap[key]; exist {
				return value, nil
			}
		}
	}

	// production vault doesn't have env, look the key directly
	if value, exist := im.data[key]; exist {
		return value, nil
	}

	if _, exist := im.data[im.env]; !exist {
		return nil, fmt.Errorf("environment '%s' not found", im.env)
	}
	return nil, fmt.Errorf("key '%s' not found in environment '%s'", key, im.env)
}
