package config

// Engine collects the tunable parameters of the storage engine.
type Engine struct {
	// BlockStoreCapacity bounds how many blocks may be outstanding.
	BlockStoreCapacity int
	// BlockReuseLimit bounds how many released blocks are kept for reuse.
	BlockReuseLimit int
	// SegmentReuseLimit bounds how many undo buffer segments are kept for
	// reuse.
	SegmentReuseLimit int
	LogLevel          string
	LogFile           string
}

// DefaultEngine returns the engine parameters with their defaults.
func DefaultEngine() Engine {
	return Engine{
		BlockStoreCapacity: 100,
		BlockReuseLimit:    100,
		SegmentReuseLimit:  10000,
		LogLevel:           "info",
	}
}

// Vars declares the engine parameters as variables of cfg, so they can be
// set from flags or a config file.
func (e *Engine) Vars(cfg *Config) {
	cfg.Var(&e.BlockStoreCapacity, "block_store_capacity").
		Usage("maximum `blocks` outstanding from the block store").
		Int(e.BlockStoreCapacity)
	cfg.Var(&e.BlockReuseLimit, "block_reuse_limit").
		Usage("released `blocks` kept for reuse").Int(e.BlockReuseLimit)
	cfg.Var(&e.SegmentReuseLimit, "segment_reuse_limit").
		Usage("undo buffer `segments` kept for reuse").Int(e.SegmentReuseLimit)
	cfg.Var(&e.LogLevel, "log_level").
		Usage("log `level`: trace, debug, info, warn, error, fatal, or panic").
		String(e.LogLevel)
	cfg.Var(&e.LogFile, "log_file").Usage("`file` to use for logging").
		String(e.LogFile)
}
