// Package train fits a model.Model to next-token prediction.
//
// This package provides:
//   - CrossEntropy: shifted next-token loss and its gradient w.r.t. logits
//   - AdamW: Adam with decoupled weight decay
//   - Schedule: linear warmup followed by cosine annealing
//   - ClipGradNorm: global-norm gradient clipping
//   - Trainer: one optimisation step per batch, plus evaluation
//
// Example usage:
//
//	trainer, err := train.New(m, train.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, batch := range batches {
//	    res, err := trainer.TrainStep(batch)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Printf("step %d loss %.4f\n", res.Step, res.Loss)
//	}
package train
