package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tclab_control/internal/controller"
	"tclab_control/internal/device"
	"tclab_control/internal/logger"
	"tclab_control/internal/service"

	"github.com/spf13/viper"
)

const (
	modeServer  = "server"
	modeConsole = "console"

	driverTCLab = "tclab"
	driverSim   = "sim"

	envPrefix = "TCLAB"
)

type deviceConfig struct {
	Driver      string
	Port        string
	Baud        int
	ReadTimeout time.Duration
	ResetDelay  time.Duration
	Sim         device.SimConfig
}

type appConfig struct {
	Mode         string
	Port         string
	LogLevel     string
	DBPath       string
	SigningKey   string
	TokenTTL     time.Duration
	Device       deviceConfig
	SamplePeriod time.Duration
	Bias         float64
	LiveBuffer   int
	PlotDir      string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", modeServer)
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", logger.InfoLevel)
	v.SetDefault("db.path", "tclab.db")
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("device.driver", driverTCLab)
	v.SetDefault("device.port", "")
	v.SetDefault("device.baud", device.DefaultBaud)
	v.SetDefault("device.read_timeout", device.DefaultReadTimeout)
	v.SetDefault("device.reset_delay", device.DefaultResetDelay)
	v.SetDefault("device.sim.ambient_c", device.AmbientC)
	v.SetDefault("device.sim.time_scale", 1.0)
	v.SetDefault("device.sim.fail_after_reads", 0)
	v.SetDefault("controller.sample_period", controller.DefaultSamplePeriod)
	v.SetDefault("controller.bias", 0.0)
	v.SetDefault("live.buffer", 64)
	v.SetDefault("plot.dir", "plots")
}

// loadConfig reads config.yml from dirs (first match wins) and applies
// TCLAB_* environment overrides, e.g. TCLAB_DEVICE_DRIVER=sim. A missing
// file leaves the defaults in place.
func loadConfig(dirs ...string) (appConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return appConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := appConfig{
		Mode:       strings.ToLower(strings.TrimSpace(v.GetString("mode"))),
		Port:       v.GetString("port"),
		LogLevel:   logger.NormalizeLevel(v.GetString("log_level")),
		DBPath:     v.GetString("db.path"),
		SigningKey: v.GetString("auth.signing_key"),
		TokenTTL:   v.GetDuration("auth.token_ttl"),
		Device: deviceConfig{
			Driver:      strings.ToLower(strings.TrimSpace(v.GetString("device.driver"))),
			Port:        v.GetString("device.port"),
			Baud:        v.GetInt("device.baud"),
			ReadTimeout: v.GetDuration("device.read_timeout"),
			ResetDelay:  v.GetDuration("device.reset_delay"),
			Sim: device.SimConfig{
				AmbientC:       v.GetFloat64("device.sim.ambient_c"),
				TimeScale:      v.GetFloat64("device.sim.time_scale"),
				FailAfterReads: v.GetInt("device.sim.fail_after_reads"),
			},
		},
		SamplePeriod: v.GetDuration("controller.sample_period"),
		Bias:         v.GetFloat64("controller.bias"),
		LiveBuffer:   v.GetInt("live.buffer"),
		PlotDir:      v.GetString("plot.dir"),
	}
	return cfg, cfg.validate()
}

func (c appConfig) validate() error {
	switch c.Mode {
	case modeServer:
		if c.SigningKey == "" {
			return errors.New("auth.signing_key is required in server mode")
		}
	case modeConsole:
	default:
		return fmt.Errorf("unknown mode %q: want %s or %s", c.Mode, modeServer, modeConsole)
	}
	switch c.Device.Driver {
	case driverTCLab, driverSim:
	default:
		return fmt.Errorf("unknown device.driver %q: want %s or %s", c.Device.Driver, driverTCLab, driverSim)
	}
	if c.SamplePeriod <= 0 {
		return fmt.Errorf("controller.sample_period must be > 0, got %s", c.SamplePeriod)
	}
	return nil
}

func (c appConfig) connector() device.Connector {
	if c.Device.Driver == driverSim {
		return &device.SimConnector{Config: c.Device.Sim}
	}
	sc := device.NewSerialConnector(c.Device.Port, c.Device.Baud, c.Device.ReadTimeout)
	sc.ResetDelay = c.Device.ResetDelay
	return sc
}

func (c appConfig) serviceConfig() service.Config {
	return service.Config{
		SamplePeriod: c.SamplePeriod,
		Bias:         c.Bias,
		SigningKey:   c.SigningKey,
		TokenTTL:     c.TokenTTL,
		LiveBuffer:   c.LiveBuffer,
	}
}
