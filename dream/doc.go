// Package dream synthesizes images that excite chosen layers of a frozen
// convolutional network.
//
// A run climbs an octave pyramid from coarse to fine. At every octave the
// image is jittered, pushed through the network, and nudged along the
// normalized input gradient of the layer objective. Detail lost when the
// source was downscaled is reinjected before moving to the next octave.
//
//	network, _ := nn.NewVGG19(nil)
//	_ = network.LoadWeightsFile("vgg19.safetensors")
//
//	cfg := dream.DefaultRunConfig()
//	cfg.Layers = []string{"relu4_3"}
//
//	result, err := dream.Generate(ctx, dream.NewNetworkExtractor(network), img, cfg)
package dream
