package config

// Synb0Config holds the whole configuration
type Synb0Config struct {
	BsubPath          string `yaml:"BsubPath"`
	BjobsPath         string `yaml:"BjobsPath"`
	BkillPath         string `yaml:"BkillPath"`
	SingularityPath   string `yaml:"SingularityPath"`
	CondaPath         string `yaml:"CondaPath"`
	CondaEnv          string `yaml:"CondaEnv"`
	BashPath          string `yaml:"BashPath"`
	ContainersDir     string `yaml:"ContainersDir"`
	ContainerVersion  string `yaml:"ContainerVersion"`
	BidsScriptPath    string `yaml:"BidsScriptPath"`
	LogDir            string `yaml:"LogDir"`
	DataRootFolder    string `yaml:"DataRootFolder"`
	TmpDir            string `yaml:"TmpDir"`
	Queue             string `yaml:"Queue"`
	Cores             int    `yaml:"Cores"`
	MemoryMB          int    `yaml:"MemoryMB"`
	WallTime          string `yaml:"WallTime"`
	CommandPrefix     string `yaml:"CommandPrefix"`
	VerboseLogging    bool   `yaml:"VerboseLogging"`
	ErrorsOnlyLogging bool   `yaml:"ErrorsOnlyLogging"`
	set               bool
}
