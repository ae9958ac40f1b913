package main

import "github.com/lyallcooper/legalreview/internal/scan"

// checkpointsValue implements pflag.Value for a checkpoint sequence.
type checkpointsValue struct {
	target *scan.Checkpoints
}

func (v *checkpointsValue) String() string {
	if v.target == nil || len(*v.target) == 0 {
		return ""
	}
	return v.target.String()
}

func (v *checkpointsValue) Set(s string) error {
	c, err := scan.ParseCheckpoints(s)
	if err != nil {
		return err
	}
	*v.target = c
	return nil
}

func (v *checkpointsValue) Type() string { return "ints" }
