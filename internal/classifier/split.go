package classifier

import (
	"fmt"
	"math"

	"spam-moderator/internal/models"
)

// splitSizes returns the evaluation and training sizes for n rows: ceil(testSize*n) rows are
// held out and the rest are used for training.
func splitSizes(n int, testSize float64) (nEval, nTrain int) {
	nEval = int(math.Ceil(testSize*float64(n) - 1e-9))
	if nEval > n {
		nEval = n
	}
	return nEval, n - nEval
}

// split draws a random permutation and cuts it into evaluation and training parts.
func (c *Classifier) split(examples []models.Example) (train, eval []models.Example) {
	nEval, _ := splitSizes(len(examples), c.cfg.TestSize)
	perm := c.perm(len(examples))

	eval = make([]models.Example, 0, nEval)
	train = make([]models.Example, 0, len(examples)-nEval)
	for i, idx := range perm {
		if i < nEval {
			eval = append(eval, examples[idx])
		} else {
			train = append(train, examples[idx])
		}
	}
	return train, eval
}

// trainingSplit draws splits until the training part holds both classes.
func (c *Classifier) trainingSplit(examples []models.Example) (train, eval []models.Example, err error) {
	nEval, nTrain := splitSizes(len(examples), c.cfg.TestSize)
	if nEval < 1 || nTrain < 1 {
		return nil, nil, fmt.Errorf("%w: %d examples cannot be split into training and evaluation sets", ErrInsufficientData, len(examples))
	}

	for attempt := 0; attempt < c.cfg.SplitAttempts; attempt++ {
		train, eval = c.split(examples)
		ham, spam := countLabels(train)
		if ham > 0 && spam > 0 {
			return train, eval, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: training split contains a single class after %d draws", ErrInsufficientData, c.cfg.SplitAttempts)
}

func countLabels(examples []models.Example) (ham, spam int) {
	for _, ex := range examples {
		if ex.Label == models.Spam {
			spam++
		} else {
			ham++
		}
	}
	return ham, spam
}

func texts(examples []models.Example) []string {
	out := make([]string, len(examples))
	for i, ex := range examples {
		out[i] = ex.Text
	}
	return out
}

func labels(examples []models.Example) []models.Label {
	out := make([]models.Label, len(examples))
	for i, ex := range examples {
		out[i] = ex.Label
	}
	return out
}
