package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/ctessum/aqmap"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is the version of the command.
const Version = "0.1.0"

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	def := aqmap.DefaultConfig()
	sources := make(map[string]string, len(def.Sources))
	for p, s := range def.Sources {
		sources[p] = s.Pattern
	}
	datasetFlags := []*pflag.FlagSet{levelsCmd.Flags(), exportCmd.Flags(), legendCmd.Flags()}

	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "verbose",
			usage: `
              verbose turns on debug logging.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "DataDir",
			usage: `
              DataDir is the directory holding one subdirectory of
              data files for each pollutant. It may contain environment
              variables.`,
			defaultVal: def.DataDir,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Sources",
			usage: `
              Sources maps each pollutant to the file name pattern of its
              data files, where the pattern takes the year as its only
              format argument.`,
			defaultVal: sources,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Levels",
			usage: `
              Levels is the number of levels of detail built for each
              dataset.`,
			defaultVal: def.Levels,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "MaxVisibleCells",
			usage: `
              MaxVisibleCells is the target maximum number of polygons
              drawn in one viewport.`,
			defaultVal: def.MaxVisibleCells,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Sampler",
			usage: `
              Sampler is the method used to build coarse levels of detail:
              "stride" keeps the base cell at each stride position and
              "mean" averages the base cells in each coarse cell.`,
			defaultVal: def.Sampler,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Scheme",
			usage: `
              Scheme is the color scheme: "default", "colorblind", or
              "blackbody".`,
			defaultVal: def.Scheme,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Opacity",
			usage: `
              Opacity is the polygon fill opacity in [0, 1].`,
			defaultVal: def.Opacity,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags(), exportCmd.Flags()},
		},
		{
			name: "CacheSize",
			usage: `
              CacheSize is the number of map tile layers held in memory.`,
			defaultVal: def.CacheSize,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "ViewportWidth",
			usage: `
              ViewportWidth is the client viewport width in pixels used to
              choose the level of detail of map tiles.`,
			defaultVal: def.ViewportWidth,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "ViewportHeight",
			usage: `
              ViewportHeight is the client viewport height in pixels used
              to choose the level of detail of map tiles.`,
			defaultVal: def.ViewportHeight,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "addr",
			usage: `
              addr is the address the server listens on.`,
			defaultVal: "localhost:8080",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "tls-cert",
			usage: `
              tls-cert is the TLS certificate file. If it and tls-key are
              set the server uses HTTPS.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "tls-key",
			usage: `
              tls-key is the TLS private key file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "pollutant",
			usage: `
              pollutant is the pollutant to use.`,
			shorthand:  "p",
			defaultVal: "no2",
			flagsets:   datasetFlags,
		},
		{
			name: "year",
			usage: `
              year is the year of the data to use.`,
			shorthand:  "y",
			defaultVal: 2019,
			flagsets:   datasetFlags,
		},
		{
			name: "level",
			usage: `
              level is the index of the level of detail to export.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{exportCmd.Flags()},
		},
		{
			name: "out",
			usage: `
              out is the output file.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{exportCmd.Flags(), legendCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("AQMAP")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(v)
				set.StringP(option.name, option.shorthand, b.String(), option.usage)
			default:
				panic("invalid argument type")
			}
		}
		Cfg.BindPFlag(option.name, option.flagsets[0].Lookup(option.name))
	}

	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(serveCmd)
	Root.AddCommand(levelsCmd)
	Root.AddCommand(exportCmd)
	Root.AddCommand(legendCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets the log level.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("aqmap: problem reading configuration file: %v", err)
		}
	}
	if Cfg.GetBool("verbose") {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return nil
}

// loadConfig returns the aqmap configuration held in Cfg.
func loadConfig() (aqmap.Config, error) {
	sources, err := cast.ToStringMapStringE(Cfg.Get("Sources"))
	if err != nil {
		return aqmap.Config{}, fmt.Errorf("aqmap: invalid Sources: %v", err)
	}
	c := aqmap.Config{
		DataDir:         Cfg.GetString("DataDir"),
		Sources:         make(map[string]aqmap.SourceConfig, len(sources)),
		Levels:          Cfg.GetInt("Levels"),
		MaxVisibleCells: Cfg.GetInt("MaxVisibleCells"),
		Sampler:         Cfg.GetString("Sampler"),
		Scheme:          Cfg.GetString("Scheme"),
		Opacity:         Cfg.GetFloat64("Opacity"),
		CacheSize:       Cfg.GetInt("CacheSize"),
		ViewportWidth:   Cfg.GetInt("ViewportWidth"),
		ViewportHeight:  Cfg.GetInt("ViewportHeight"),
	}
	for p, pattern := range sources {
		c.Sources[p] = aqmap.SourceConfig{Pattern: pattern}
	}
	return c, nil
}

// newAQMap creates an AQMap from the configuration held in Cfg.
func newAQMap() (*aqmap.AQMap, error) {
	c, err := loadConfig()
	if err != nil {
		return nil, err
	}
	m, err := aqmap.New(c, nil)
	if err != nil {
		return nil, err
	}
	m.SetLogger(logger)
	return m, nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "aqmap",
	Short: "Maps of gridded air quality measurements.",
	Long: `aqmap draws gridded air quality measurements at levels of detail suited
to the map view. Use the subcommands specified below to access its functionality.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'AQMAP_var' where 'var' is the
name of the variable to be set.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of aqmap.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("aqmap v%s\n", Version)
	},
	DisableAutoGenTag: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve map tiles",
	Long: `serve starts an HTTP server for vector map tiles (/tiles), legends
(/legend), and the value at a location (/value).`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newAQMap()
		if err != nil {
			return err
		}
		srv := aqmap.NewMapTileServer(m, m.CacheSize)
		srv.Log = logger

		addr := Cfg.GetString("addr")
		httpSrv := &http.Server{
			Addr:    addr,
			Handler: srv,
			// Some security settings
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
			TLSConfig: &tls.Config{
				PreferServerCipherSuites: true,
				CurvePreferences: []tls.CurveID{
					tls.CurveP256,
					tls.X25519,
				},
			},
		}
		cert, key := Cfg.GetString("tls-cert"), Cfg.GetString("tls-key")
		if cert != "" && key != "" {
			logger.Info("Serving on https://" + addr)
			return httpSrv.ListenAndServeTLS(cert, key)
		}
		logger.Info("Serving on http://" + addr)
		return httpSrv.ListenAndServe()
	},
}

var levelsCmd = &cobra.Command{
	Use:               "levels",
	Short:             "Summarize levels of detail",
	Long:              "levels prints the number of cells and the value range of each level of detail of a dataset.",
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newAQMap()
		if err != nil {
			return err
		}
		t, err := m.Table(context.Background(), Cfg.GetString("pollutant"), Cfg.GetInt("year"))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintf(w, "level\tcell size (km)\tcells\tvalid\tmin\tmax\tmean\n")
		for i := 0; i < t.NumLevels(); i++ {
			lod, err := t.Level(i)
			if err != nil {
				return err
			}
			s := lod.Stats()
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%.4g\t%.4g\t%.4g\n", i, lod.DetailFactor, s.Cells, s.Valid, s.Min, s.Max, s.Mean)
		}
		return w.Flush()
	},
}

var exportCmd = &cobra.Command{
	Use:               "export",
	Short:             "Export a level of detail as a shapefile",
	Long:              "export writes the polygons of one level of detail of a dataset to a shapefile.",
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newAQMap()
		if err != nil {
			return err
		}
		p, year := Cfg.GetString("pollutant"), Cfg.GetInt("year")
		t, err := m.Table(context.Background(), p, year)
		if err != nil {
			return err
		}
		set := aqmap.NewPolygonSet(m.Projector())
		if err := set.Refresh(t, Cfg.GetInt("level")); err != nil {
			return err
		}
		out := Cfg.GetString("out")
		if out == "" {
			out = fmt.Sprintf("%s_%d_%d.shp", p, year, Cfg.GetInt("level"))
		}
		if err := aqmap.ExportShapefile(out, set); err != nil {
			return err
		}
		logger.Infof("wrote %d polygons to %s", len(set.Polygons()), out)
		return nil
	},
}

var legendCmd = &cobra.Command{
	Use:               "legend",
	Short:             "Draw a legend",
	Long:              "legend writes a PNG color bar covering the value range of a dataset.",
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newAQMap()
		if err != nil {
			return err
		}
		p, year := Cfg.GetString("pollutant"), Cfg.GetInt("year")
		t, err := m.Table(context.Background(), p, year)
		if err != nil {
			return err
		}
		lod, err := t.Level(0)
		if err != nil {
			return err
		}
		s := lod.Stats()
		b, err := aqmap.Legend(m.ColorScheme(), s.Min, s.Max, t.Dataset().Units())
		if err != nil {
			return err
		}
		out := Cfg.GetString("out")
		if out == "" {
			out = fmt.Sprintf("%s_%d_legend.png", p, year)
		}
		return ioutil.WriteFile(out, b, 0644)
	},
}
