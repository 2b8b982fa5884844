package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/daq-spack/bcpub/pkg/errors"
	"github.com/daq-spack/bcpub/pkg/util/console"
	"github.com/daq-spack/bcpub/pkg/util/files"
)

const maxSearchDepth = 100

// GetConfig loads and completes the config. An explicit path must exist.
// Otherwise configFilename is looked up from the working directory upwards,
// and the defaults are used when no file is found. Environment overrides
// are applied last.
func GetConfig(explicitPath string, configFilename string) (*Config, error) {
	config, dir, err := GetRawConfig(explicitPath, configFilename)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnvironment(config); err != nil {
		return nil, err
	}
	if err := config.ValidateAndComplete(dir); err != nil {
		return nil, err
	}
	return config, nil
}

// GetRawConfig returns the parsed config and the directory relative paths
// in it resolve against.
func GetRawConfig(explicitPath string, configFilename string) (*Config, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}

	if explicitPath != "" {
		path, err := files.ExpandUser(explicitPath)
		if err != nil {
			return nil, "", err
		}
		config, err := loadConfigFromFile(path)
		if err != nil {
			return nil, "", err
		}
		return config, filepath.Dir(path), nil
	}

	rootDir, err := findProjectRootDir(cwd, configFilename)
	if errors.IsConfigNotFound(err) {
		console.Debugf("%s", err)
		return DefaultConfig(), cwd, nil
	}
	if err != nil {
		return nil, "", err
	}
	config, err := loadConfigFromFile(filepath.Join(rootDir, configFilename))
	if err != nil {
		return nil, "", err
	}
	return config, rootDir, nil
}

// Given a file path, attempt to load a config from that file
func loadConfigFromFile(file string) (*Config, error) {
	exists, err := files.Exists(file)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.ConfigNotFound(fmt.Sprintf("%s does not exist in %s", filepath.Base(file), filepath.Dir(file)))
	}

	contents, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	config, err := FromYAML(contents)
	if err != nil {
		if perr, ok := err.(*ParseError); ok {
			perr.Filename = file
		}
		return nil, err
	}
	config.filename = file
	console.Debugf("Loaded config from %s", file)
	return config, nil
}

// Given a directory, find the config file in that directory
func findConfigPathInDirectory(dir string, configFilename string) (configPath string, err error) {
	filePath := filepath.Join(dir, configFilename)
	exists, err := files.Exists(filePath)
	if err != nil {
		return "", fmt.Errorf("Failed to scan directory %s for %s: %s", dir, filePath, err)
	} else if exists {
		return filePath, nil
	}

	return "", errors.ConfigNotFound(fmt.Sprintf("%s not found in %s", configFilename, dir))
}

// Walk up the directory tree to the first directory holding a config file.
func findProjectRootDir(startDir string, configFilename string) (string, error) {
	dir := startDir
	for i := 0; i < maxSearchDepth; i++ {
		switch _, err := findConfigPathInDirectory(dir, configFilename); {
		case err != nil && !errors.IsConfigNotFound(err):
			return "", err
		case err == nil:
			return dir, nil
		case dir == "." || dir == "/":
			return "", errors.ConfigNotFound(fmt.Sprintf("%s not found in %s (or in any parent directories)", configFilename, startDir))
		}

		dir = filepath.Dir(dir)
	}

	return "", errors.ConfigNotFound(fmt.Sprintf("No %s found in parent directories.", configFilename))
}
