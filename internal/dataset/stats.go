package dataset

import (
	"fmt"
	"os"
	"sort"
)

// SplitStats summarizes one split for `igpctl data stats`.
type SplitStats struct {
	Split      string
	Episodes   int
	Frames     int
	Detections int
	Bytes      int64 // compressed size on disk

	Scenes []string
	Goals  map[string]int // episodes per goal category
}

// CollectStats decodes a split and aggregates its shape.
func CollectStats(dataDir, split string) (*SplitStats, error) {
	refs, err := Scan(dataDir, split)
	if err != nil {
		return nil, err
	}

	stats := &SplitStats{Split: split, Goals: make(map[string]int)}
	scenes := make(map[string]bool)

	for _, ref := range refs {
		frames, err := ReadEpisode(ref.Path)
		if err != nil {
			return nil, err
		}
		if info, err := os.Stat(ref.Path); err == nil {
			stats.Bytes += info.Size()
		}

		stats.Episodes++
		stats.Frames += len(frames)
		for i := range frames {
			stats.Detections += len(frames[i].Detections)
			scenes[frames[i].Scene] = true
		}
		if len(frames) > 0 {
			stats.Goals[frames[0].Goal.Category]++
		}
	}

	for scene := range scenes {
		stats.Scenes = append(stats.Scenes, scene)
	}
	sort.Strings(stats.Scenes)
	return stats, nil
}

// Problem is one defect found by Verify. Frame is -1 for file-level
// problems.
type Problem struct {
	Episode string
	Frame   int
	Detail  string
}

func (p Problem) String() string {
	if p.Frame < 0 {
		return fmt.Sprintf("%s: %s", p.Episode, p.Detail)
	}
	return fmt.Sprintf("%s frame %d: %s", p.Episode, p.Frame, p.Detail)
}

// Verify decodes every frame of a split and reports defects: files
// that fail to decode, depth images that do not match their declared
// shape, detection masks with inconsistent run lengths, and steps out
// of sequence.
func Verify(dataDir, split string) ([]Problem, error) {
	refs, err := Scan(dataDir, split)
	if err != nil {
		return nil, err
	}

	var problems []Problem
	for _, ref := range refs {
		frames, err := ReadEpisode(ref.Path)
		if err != nil {
			problems = append(problems, Problem{Episode: ref.ID, Frame: -1, Detail: err.Error()})
			continue
		}
		if len(frames) == 0 {
			problems = append(problems, Problem{Episode: ref.ID, Frame: -1, Detail: "no frames"})
			continue
		}

		for i := range frames {
			frame := &frames[i]
			if frame.Step != i {
				problems = append(problems, Problem{
					Episode: ref.ID, Frame: i,
					Detail: fmt.Sprintf("step %d out of sequence", frame.Step),
				})
			}
			if _, err := frame.DepthValues(); err != nil {
				problems = append(problems, Problem{Episode: ref.ID, Frame: i, Detail: err.Error()})
			}
			for j := range frame.Detections {
				det := &frame.Detections[j]
				if det.Score < 0 || det.Score > 1 {
					problems = append(problems, Problem{
						Episode: ref.ID, Frame: i,
						Detail: fmt.Sprintf("detection %d score %v outside [0, 1]", j, det.Score),
					})
				}
				if _, err := det.DecodeMask(frame.Height, frame.Width); err != nil {
					problems = append(problems, Problem{
						Episode: ref.ID, Frame: i,
						Detail: fmt.Sprintf("detection %d: %v", j, err),
					})
				}
			}
		}
	}
	return problems, nil
}
