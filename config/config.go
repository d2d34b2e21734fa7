package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// StoreConfig 持久层配置：全局索引库文件路径
type StoreConfig struct {
	IndexPath string `yaml:"index_path"`
}

type LogConfig struct {
	Path string `yaml:"path"`
}

var AppConfig *Config

func InitConfig() error {
	data, err := os.ReadFile("config/config.yaml")
	if err != nil {
		return fmt.Errorf("read config file failed: %v", err)
	}

	AppConfig = &Config{}
	err = yaml.Unmarshal(data, AppConfig)
	if err != nil {
		return fmt.Errorf("unmarshal config failed: %v", err)
	}

	return nil
}
