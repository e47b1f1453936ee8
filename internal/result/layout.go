package result

import (
	"path"
	"regexp"
)

// Layout names the files a job writes into its output directory. Patterns
// must capture the index in their first group, singleton patterns have no
// group.
type Layout struct {
	// shape A
	PathLossFile string

	// shape B
	ElevationDir     string
	ElevationPattern *regexp.Regexp
	PathLossDir      string
	PathLossPattern  *regexp.Regexp

	// shape C
	LeftUpDir        string
	LeftDownDir      string
	SingletonPattern *regexp.Regexp
	RightUpDir       string
	RightUpPattern   *regexp.Regexp
	RightDownDir     string
	RightDownPattern *regexp.Regexp

	// shape D
	PDPDir     string
	PDPPattern *regexp.Regexp
	PLDir      string
	PLPattern  *regexp.Regexp
	SFDir      string
	SFPattern  *regexp.Regexp

	// satellite images of the dataset, shapes A and B
	DatasetDir   string
	SatelliteDir string
}

func DefaultLayout() Layout {
	return Layout{
		PathLossFile: "pathloss_result.csv",

		ElevationDir:     "elevation_output",
		ElevationPattern: regexp.MustCompile(`^.*?(\d+)_elevation\.csv$`),
		PathLossDir:      "pl_output",
		PathLossPattern:  regexp.MustCompile(`^.*?(\d+)_path_loss\.csv$`),

		LeftUpDir:        "left_up",
		LeftDownDir:      "left_down",
		SingletonPattern: regexp.MustCompile(`\.png$`),
		RightUpDir:       "right_up",
		RightUpPattern:   regexp.MustCompile(`^gen_0_(\d+)_pdp\.png$`),
		RightDownDir:     "right_down",
		RightDownPattern: regexp.MustCompile(`^gen_1_(\d+)_pdp\.png$`),

		PDPDir:     "pdp",
		PDPPattern: regexp.MustCompile(`^3d_surface_plot_(\d+)\.png$`),
		PLDir:      "pl",
		PLPattern:  regexp.MustCompile(`^pl_(\d+)\.png$`),
		SFDir:      "sf",
		SFPattern:  regexp.MustCompile(`^sf_(\d+)\.png$`),

		DatasetDir:   "dataset",
		SatelliteDir: "satellite",
	}
}

// Target locates the files of one job inside the storage filesystem.
type Target struct {
	// Output is the slash separated output directory of the job.
	Output string
	// Dataset is the dataset the job evaluates, empty if there is none.
	Dataset string
}

// NewTarget returns the target of job id stored under
// <evaluateDir>/<id>/<outputDir>.
func NewTarget(evaluateDir, id, outputDir, dataset string) Target {
	return Target{
		Output:  path.Join(evaluateDir, id, outputDir),
		Dataset: dataset,
	}
}
