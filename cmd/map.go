package cmd

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/dataset"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/logging"
	"github.com/polonav/igpctl/internal/mapgrid"
	"github.com/polonav/igpctl/internal/overrides"
	"github.com/polonav/igpctl/internal/render"
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Rebuild and inspect semantic maps from recorded episodes",
}

var mapRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Replay recorded episodes through the semantic map",
	Long: `Replays every frame of the recorded episodes through the semantic
map module and writes one global map snapshot (PNG) per episode, plus
an index.jsonl of per-episode mapping metrics, into the output
directory.

Map parameters default to the project's evaluation configs and accept
SEMANTIC_MAP overrides:

  igpctl map rebuild --split val -o SEMANTIC_MAP.map_resolution=10`,
	RunE: runMapRebuild,
}

var mapViewCmd = &cobra.Command{
	Use:   "view <snapshot>",
	Short: "Preview a stored map snapshot in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runMapView,
}

var (
	mapDataDir     string
	mapSplit       string
	mapEpisodes    int
	mapOut         string
	mapWorkers     int
	mapInteractive bool
	mapOptions     []string
	mapOptionList  string
	mapViewWidth   int
)

const defaultPreviewWidth = 100

func init() {
	mapRebuildCmd.Flags().StringVar(&mapDataDir, "data", "", "Dataset root (default: data_dir from igpctl.toml)")
	mapRebuildCmd.Flags().StringVar(&mapSplit, "split", "train", "Dataset split (train or val)")
	mapRebuildCmd.Flags().IntVar(&mapEpisodes, "episodes", 0, "Rebuild only the first N episodes (0 for all)")
	mapRebuildCmd.Flags().StringVar(&mapOut, "out", "", "Snapshot directory (default: maps/<split> under the state dir)")
	mapRebuildCmd.Flags().IntVar(&mapWorkers, "workers", 2, "Episode decode goroutines")
	mapRebuildCmd.Flags().BoolVar(&mapInteractive, "interactive", false, "Preview each map in the terminal as it completes")
	mapRebuildCmd.Flags().StringArrayVarP(&mapOptions, "option", "o", nil, "Dotted SEMANTIC_MAP override (repeatable)")
	mapRebuildCmd.Flags().StringVar(&mapOptionList, "options", "", "Comma-joined dotted SEMANTIC_MAP overrides")

	mapViewCmd.Flags().IntVar(&mapViewWidth, "width", defaultPreviewWidth, "Preview width in terminal columns")

	mapCmd.AddCommand(mapRebuildCmd)
	mapCmd.AddCommand(mapViewCmd)
	rootCmd.AddCommand(mapCmd)
}

// semanticMapSpec mirrors the SEMANTIC_MAP section of the training
// configs in its snake_case key form. Planner keys under the same
// section are ignored.
type semanticMapSpec struct {
	FrameHeight        int     `mapstructure:"frame_height"`
	FrameWidth         int     `mapstructure:"frame_width"`
	CameraHeight       float64 `mapstructure:"camera_height"`
	HFOV               float64 `mapstructure:"hfov"`
	NumCategories      int     `mapstructure:"num_sem_categories"`
	MapSizeCM          int     `mapstructure:"map_size_cm"`
	Resolution         int     `mapstructure:"map_resolution"`
	VisionRange        int     `mapstructure:"vision_range"`
	GlobalDownscaling  int     `mapstructure:"global_downscaling"`
	DuScale            int     `mapstructure:"du_scale"`
	CatPredThreshold   float64 `mapstructure:"cat_pred_threshold"`
	ExpPredThreshold   float64 `mapstructure:"exp_pred_threshold"`
	MapPredThreshold   float64 `mapstructure:"map_pred_threshold"`
	MinDepth           float64 `mapstructure:"min_depth"`
	MaxDepth           float64 `mapstructure:"max_depth"`
	MinObsHeightCM     int     `mapstructure:"min_obs_height_cm"`
	DilateObstacles    bool    `mapstructure:"dilate_obstacles"`
	DilateSize         int     `mapstructure:"dilate_size"`
	ProbabilityPrior   float64 `mapstructure:"probability_prior"`
	CloseRangeCM       int     `mapstructure:"close_range"`
	DetectionThreshold float64 `mapstructure:"confident_threshold"`
}

// mapParams applies SEMANTIC_MAP overrides on top of the default
// parameterization.
func mapParams(set *overrides.Set) (mapgrid.Params, error) {
	d := mapgrid.DefaultParams()
	spec := semanticMapSpec{
		FrameHeight:        d.FrameHeight,
		FrameWidth:         d.FrameWidth,
		CameraHeight:       d.CameraHeight,
		HFOV:               d.HFOV,
		NumCategories:      d.NumCategories,
		MapSizeCM:          d.MapSizeCM,
		Resolution:         d.Resolution,
		VisionRange:        d.VisionRange,
		GlobalDownscaling:  d.GlobalDownscaling,
		DuScale:            d.DuScale,
		CatPredThreshold:   d.CatPredThreshold,
		ExpPredThreshold:   d.ExpPredThreshold,
		MapPredThreshold:   d.MapPredThreshold,
		MinDepth:           d.MinDepth,
		MaxDepth:           d.MaxDepth,
		MinObsHeightCM:     d.MinObsHeightCM,
		DilateObstacles:    d.DilateObstacles,
		DilateSize:         d.DilateSize,
		ProbabilityPrior:   d.ProbabilityPrior,
		CloseRangeCM:       d.CloseRangeCM,
		DetectionThreshold: d.DetectionThreshold,
	}

	if set.Len() > 0 {
		tree, err := set.Tree()
		if err != nil {
			return mapgrid.Params{}, errors.OverrideError("invalid map overrides", err)
		}
		if err := overrides.DecodeSubtree(tree, "SEMANTIC_MAP", &spec); err != nil {
			return mapgrid.Params{}, errors.OverrideError("invalid SEMANTIC_MAP options", err)
		}
	}

	return mapgrid.Params{
		FrameHeight:        spec.FrameHeight,
		FrameWidth:         spec.FrameWidth,
		CameraHeight:       spec.CameraHeight,
		HFOV:               spec.HFOV,
		NumCategories:      spec.NumCategories,
		MapSizeCM:          spec.MapSizeCM,
		Resolution:         spec.Resolution,
		VisionRange:        spec.VisionRange,
		GlobalDownscaling:  spec.GlobalDownscaling,
		DuScale:            spec.DuScale,
		CatPredThreshold:   spec.CatPredThreshold,
		ExpPredThreshold:   spec.ExpPredThreshold,
		MapPredThreshold:   spec.MapPredThreshold,
		MinDepth:           spec.MinDepth,
		MaxDepth:           spec.MaxDepth,
		MinObsHeightCM:     spec.MinObsHeightCM,
		DilateObstacles:    spec.DilateObstacles,
		DilateSize:         spec.DilateSize,
		ProbabilityPrior:   spec.ProbabilityPrior,
		CloseRangeCM:       spec.CloseRangeCM,
		DetectionThreshold: spec.DetectionThreshold,
	}, nil
}

// episodeMapRow is one index.jsonl entry from a rebuild pass.
type episodeMapRow struct {
	Episode    string  `json:"episode"`
	Scene      string  `json:"scene"`
	Goal       string  `json:"goal"`
	Frames     int     `json:"frames"`
	ExploredM2 float64 `json:"explored_m2"`
	ObstacleM2 float64 `json:"obstacle_m2"`
	Instances  int     `json:"instances"`
	Snapshot   string  `json:"snapshot"`
}

func runMapRebuild(cmd *cobra.Command, args []string) error {
	sigCtx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	dir, err := resolveDataDir(mapDataDir)
	if err != nil {
		return err
	}

	set, err := gatherOverrides(mapOptionList, mapOptions, nil)
	if err != nil {
		return err
	}
	params, err := mapParams(set)
	if err != nil {
		return err
	}
	module, err := mapgrid.New(params)
	if err != nil {
		return errors.ValidationError(err.Error())
	}

	outDir := mapOut
	if outDir == "" {
		outDir = filepath.Join(paths().StateDir, "maps", mapSplit)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.DataError("failed to create snapshot directory", err)
	}

	loader, err := dataset.NewLoader(dataset.Options{
		DataDir: dir,
		Split:   mapSplit,
		Workers: mapWorkers,
	})
	if err != nil {
		return err
	}

	limit := loader.Episodes()
	if mapEpisodes > 0 && mapEpisodes < limit {
		limit = mapEpisodes
	}

	index, err := os.Create(filepath.Join(outDir, "index.jsonl"))
	if err != nil {
		return errors.DataError("failed to create map index", err)
	}
	defer index.Close()
	enc := json.NewEncoder(index)

	batches, wait := loader.Load(ctx)

	var rebuildErr error
	rows := make([]episodeMapRow, 0, limit)
	for batch := range batches {
		for _, ep := range batch.Episodes {
			if rebuildErr != nil || len(rows) >= limit {
				// Enough done; cancel the pass and drain the rest.
				cancel()
				continue
			}

			row, st, err := rebuildEpisode(ctx, module, ep, outDir)
			if err != nil {
				rebuildErr = err
				cancel()
				continue
			}
			if err := enc.Encode(row); err != nil {
				rebuildErr = errors.DataError("failed to write map index", err)
				cancel()
				continue
			}
			rows = append(rows, row)
			logging.Debug("map rebuilt",
				"episode", row.Episode, "frames", row.Frames, "snapshot", row.Snapshot)

			if mapInteractive {
				fmt.Printf("Episode %s (%s), %d frames\n", row.Episode, row.Scene, row.Frames)
				fmt.Print(render.Preview(module, st, render.ViewGlobal, defaultPreviewWidth))
				fmt.Println()
			}
		}
	}

	if err := wait(); err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	if rebuildErr != nil && !stderrors.Is(rebuildErr, context.Canceled) {
		return rebuildErr
	}
	if sigCtx.Err() != nil {
		return errors.New(errors.ExitGeneralError, "map rebuild interrupted")
	}

	if len(rows) == 0 {
		logInfo("No episodes rebuilt")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EPISODE\tSCENE\tGOAL\tFRAMES\tEXPLORED\tOBSTACLES\tINSTANCES")
	fmt.Fprintln(w, "-------\t-----\t----\t------\t--------\t---------\t---------")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f m²\t%.1f m²\t%d\n",
			row.Episode, row.Scene, row.Goal, row.Frames,
			row.ExploredM2, row.ObstacleM2, row.Instances)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	logSuccess("Rebuilt %d maps into %s", len(rows), outDir)
	return nil
}

// rebuildEpisode replays one episode from scratch and writes its
// global map snapshot. The returned state backs the interactive
// preview.
func rebuildEpisode(ctx context.Context, m *mapgrid.Module, ep dataset.Episode, outDir string) (episodeMapRow, *mapgrid.State, error) {
	st := mapgrid.NewState(m)
	layout := m.Layout()

	instances := 0
	for i := range ep.Frames {
		if err := ctx.Err(); err != nil {
			return episodeMapRow{}, nil, err
		}

		frame := &ep.Frames[i]
		obs, err := frame.Observation(layout.Categories)
		if err != nil {
			return episodeMapRow{}, nil, errors.DataError(
				fmt.Sprintf("episode %s frame %d", ep.ID, frame.Step), err)
		}
		found, err := m.Update(st, obs)
		if err != nil {
			return episodeMapRow{}, nil, errors.DataError(
				fmt.Sprintf("episode %s frame %d", ep.ID, frame.Step), err)
		}
		for _, list := range found {
			instances += len(list)
		}
		st.UpdateGlobal(m)
	}

	snapshot := filepath.Join(outDir, ep.ID+".png")
	if err := render.WritePNG(snapshot, render.Image(m, st, render.ViewGlobal, 1)); err != nil {
		return episodeMapRow{}, nil, err
	}

	row := episodeMapRow{
		Episode:   ep.ID,
		Frames:    len(ep.Frames),
		Instances: instances,
		Snapshot:  snapshot,
	}
	if len(ep.Frames) > 0 {
		row.Scene = ep.Frames[0].Scene
		row.Goal = ep.Frames[0].Goal.Category
	}

	cell := float64(m.CellSizeCM()) / 100.0
	area := cell * cell
	row.ExploredM2 = area * countAbove(st.Global[layout.Explored].Data, 0.5)
	row.ObstacleM2 = area * countAbove(st.Global[layout.Obstacle].Data, 0.5)
	return row, st, nil
}

// countAbove counts values strictly above the threshold.
func countAbove(data []float32, threshold float32) float64 {
	n := 0
	for _, v := range data {
		if v > threshold {
			n++
		}
	}
	return float64(n)
}

func runMapView(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return errors.DataError("failed to open snapshot", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return errors.DataError(fmt.Sprintf("failed to decode %s", args[0]), err)
	}

	fmt.Print(render.PreviewImage(img, mapViewWidth))
	return nil
}
