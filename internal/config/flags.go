package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagGender    = flag.String("gender", "", "Avatar gender key (female, male)")
	flagScan      = flag.String("scan", "", "Body scan id")
	flagFace      = flag.Bool("face", false, "Frame the face only")
	flagPerf      = flag.Bool("perf", false, "Performance mode (flat shading)")
	flagMapping   = flag.String("mapping", "", "Path to the morphology mapping table")
	flagModels    = flag.String("models", "", "Directory holding <gender>.glb assets")
	flagDebugAddr = flag.String("debug-addr", "", "Serve /state and /metrics on this address")
	flagFPS       = flag.Int("fps", 0, "Target FPS")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagGender != "" {
		cfg.Subject.Gender = *flagGender
	}
	if *flagScan != "" {
		cfg.Subject.ScanID = *flagScan
	}
	if *flagFace {
		cfg.Viewer.FaceOnly = true
	}
	if *flagPerf {
		cfg.Viewer.PerformanceMode = true
	}
	if *flagMapping != "" {
		cfg.Mapping.Path = *flagMapping
	}
	if *flagModels != "" {
		cfg.Assets.Driver = "dir"
		cfg.Assets.Dir = *flagModels
	}
	if *flagDebugAddr != "" {
		cfg.Debug.Addr = *flagDebugAddr
	}
	if *flagFPS > 0 {
		cfg.Viewer.FPS = *flagFPS
	}
}
