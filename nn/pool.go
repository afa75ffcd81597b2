package nn

// maxPool2DForwardCPU pools each channel independently.
// Returns the output and, for every output element, the flat input index of its maximum.
func maxPool2DForwardCPU(input *Tensor, config *LayerConfig) (*Tensor, []int, error) {
	ch, outH, outW, err := config.OutputShape(input.Channels, input.Height, input.Width)
	if err != nil {
		return nil, nil, err
	}
	k := config.KernelSize
	stride := config.stride()
	inH, inW := input.Height, input.Width

	output := NewTensor(ch, outH, outW)
	argmax := make([]int, output.Size())

	for c := 0; c < ch; c++ {
		plane := c * inH * inW
		for oh := 0; oh < outH; oh++ {
			for ow := 0; ow < outW; ow++ {
				best := plane + (oh*stride)*inW + ow*stride
				bestVal := input.Data[best]
				for kh := 0; kh < k; kh++ {
					for kw := 0; kw < k; kw++ {
						idx := plane + (oh*stride+kh)*inW + ow*stride + kw
						if input.Data[idx] > bestVal {
							bestVal = input.Data[idx]
							best = idx
						}
					}
				}
				o := c*outH*outW + oh*outW + ow
				output.Data[o] = bestVal
				argmax[o] = best
			}
		}
	}

	return output, argmax, nil
}

// maxPool2DBackwardCPU routes each output gradient to the input element that won the max
func maxPool2DBackwardCPU(gradOutput *Tensor, argmax []int, inC, inH, inW int) *Tensor {
	gradInput := NewTensor(inC, inH, inW)
	for o, g := range gradOutput.Data {
		gradInput.Data[argmax[o]] += g
	}
	return gradInput
}
