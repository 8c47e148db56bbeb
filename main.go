package main

import "github.com/CraigKelly/bayescmp/cmd"

// TODO: bridge-sampling marginal likelihood estimator (harmonic mean is noisy)
// TODO: PSIS smoothing for the LOO importance weights

func main() {
	cmd.Execute()
}
