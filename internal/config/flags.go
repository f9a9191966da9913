package config

// Overrides captures the CLI flag surface of §6. Zero values mean "flag not
// set"; Apply only overwrites a File field when the corresponding override
// is present, so flags win over the config file, which wins over Defaults().
type Overrides struct {
	Inputs           []string
	Nameservice      string
	OutputDirectory  string
	Format           string
	Compression      string
	Deduplicate      bool
	NumThreads       int
	CacheSize        int
	MaxFilesPerTopic int
	ExcludeTopics    []string
	Service          bool
	IntervalSeconds  int
	TmpDir           string
	LockDirectory    string
}

// Apply merges o on top of f, returning the effective configuration. Flags
// the user did not set are left at f's existing value (the config-file or
// default value).
func Apply(f File, o Overrides) File {
	if len(o.Inputs) > 0 {
		f.Paths.Inputs = o.Inputs
	}
	if o.Nameservice != "" {
		f.Source.Type = "hdfs"
		f.Source.Nameservice = o.Nameservice
	}
	if o.OutputDirectory != "" {
		f.Paths.Output = o.OutputDirectory
	}
	if o.Format != "" {
		f.Format.Type = o.Format
	}
	if o.Compression != "" {
		f.Compression.Type = o.Compression
	}
	if o.Deduplicate {
		f.Worker.Deduplicate = true
	}
	if o.NumThreads > 0 {
		f.Worker.NumThreads = o.NumThreads
	}
	if o.CacheSize > 0 {
		f.Worker.CacheSize = o.CacheSize
	}
	if o.MaxFilesPerTopic > 0 {
		f.Worker.MaxFilesPerTopic = o.MaxFilesPerTopic
	}
	if len(o.ExcludeTopics) > 0 {
		f.Topics.Exclude = append(f.Topics.Exclude, o.ExcludeTopics...)
	}
	if o.Service {
		f.Service.Enabled = true
	}
	if o.IntervalSeconds > 0 {
		f.Service.Interval = o.IntervalSeconds
	}
	if o.TmpDir != "" {
		f.Worker.TmpDir = o.TmpDir
	}
	if o.LockDirectory != "" {
		f.Paths.LockDirectory = o.LockDirectory
	}
	return f
}

// Validate checks the invariants the CLI must reject with exit code 1:
// missing required fields and non-positive values where only positive
// values make sense (§6).
func (f File) Validate() error {
	if len(f.Paths.Inputs) == 0 {
		return errRequired("input path")
	}
	if f.Paths.Output == "" {
		return errRequired("output directory (-o/--output-directory)")
	}
	if f.Format.Type != "csv" && f.Format.Type != "json" {
		return errInvalid("format", f.Format.Type, "csv", "json")
	}
	if f.Compression.Type != "none" && f.Compression.Type != "gzip" && f.Compression.Type != "zip" {
		return errInvalid("compression", f.Compression.Type, "none", "gzip", "zip")
	}
	if f.Worker.NumThreads <= 0 {
		return errPositive("num-threads")
	}
	if f.Worker.CacheSize <= 0 {
		return errPositive("cache-size")
	}
	return nil
}
