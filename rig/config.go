package rig

import (
	"path/filepath"
)

// Config is the tool configuration loaded from headswap.yaml
type Config struct {
	Tool  ToolConfig  `yaml:"tool" json:"tool"`
	Paths PathsConfig `yaml:"paths" json:"paths"`
	MQTT  MQTTConfig  `yaml:"mqtt" json:"mqtt"`
	HTTP  HTTPConfig  `yaml:"http" json:"http"`
}

// ToolConfig locates the merge tool and its script
type ToolConfig struct {
	Executable string `yaml:"executable,omitempty" json:"executable,omitempty" env:"HEADSWAP_TOOL"`
	Script     string `yaml:"script" json:"script" env:"HEADSWAP_SCRIPT"`
	WorkDir    string `yaml:"workDir,omitempty" json:"workDir,omitempty" env:"HEADSWAP_WORKDIR"`
}

// PathsConfig holds the temporary output locations
type PathsConfig struct {
	TempDir       string `yaml:"tempDir" json:"tempDir" env:"HEADSWAP_TEMP_DIR"`
	OutputPattern string `yaml:"outputPattern" json:"outputPattern" env:"HEADSWAP_OUTPUT_PATTERN"`
	MergedRig     string `yaml:"mergedRig,omitempty" json:"mergedRig,omitempty" env:"HEADSWAP_MERGED_RIG"`
	HistoryDB     string `yaml:"historyDb,omitempty" json:"historyDb,omitempty" env:"HEADSWAP_HISTORY_DB"`
}

// MQTTConfig enables report publishing when Broker is set
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty" env:"MQTT_BROKER"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty" env:"MQTT_CLIENT_ID"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty" env:"MQTT_USERNAME"`
	Password      string `yaml:"password,omitempty" json:"-" env:"MQTT_PASSWORD"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty" env:"MQTT_PUBLISH_PREFIX"`
	QoS           byte   `yaml:"qos,omitempty" json:"qos,omitempty" env:"MQTT_QOS"`
}

// HTTPConfig configures the control panel
type HTTPConfig struct {
	Port int `yaml:"port" json:"port" env:"HEADSWAP_HTTP_PORT"`
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		Tool: ToolConfig{
			Script: filepath.Join("PythonFiles", "main.py"),
		},
		Paths: PathsConfig{
			TempDir:       "Temp",
			OutputPattern: "*.fbx",
		},
		MQTT: MQTTConfig{
			ClientID:      "headswap",
			PublishPrefix: "headswap",
		},
		HTTP: HTTPConfig{Port: 4040},
	}
}

// InterchangePath is where the interchange file is written
func (c *Config) InterchangePath() string {
	return filepath.Join(c.Paths.TempDir, InterchangeFileName)
}

// HistoryPath is the merge history database file
func (c *Config) HistoryPath() string {
	if c.Paths.HistoryDB != "" {
		return c.Paths.HistoryDB
	}
	return filepath.Join(c.Paths.TempDir, "history.db")
}

// MergeTool builds the tool runner. An empty executable is looked up on PATH;
// the returned error is a *ConfigError when nothing is found.
func (c *Config) MergeTool() (*MergeTool, error) {
	exe := c.Tool.Executable
	if exe == "" {
		found, err := FindTool()
		if err != nil {
			return &MergeTool{Script: c.Tool.Script, WorkDir: c.Tool.WorkDir}, err
		}
		exe = found
	}
	return &MergeTool{Executable: exe, Script: c.Tool.Script, WorkDir: c.Tool.WorkDir}, nil
}
