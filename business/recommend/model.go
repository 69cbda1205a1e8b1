package recommend

import (
	"fmt"
	"math/rand"
)

// gaussianStdDev is the spread used for optional weight init and for
// freshly appended embedding rows during finetuning.
const gaussianStdDev = 0.01

// linear is a fully connected layer y = Wx + b.
type linear struct {
	W *tensor // out x in
	B *tensor // 1 x out
}

func newLinear(in, out int) *linear {
	return &linear{
		W: newTensor(out, in),
		B: newTensor(1, out),
	}
}

func (l *linear) forward(x []float64) []float64 {
	out := make([]float64, l.W.Rows)
	for j := 0; j < l.W.Rows; j++ {
		out[j] = dot(l.W.Row(j), x) + l.B.W[j]
	}
	return out
}

// backward accumulates parameter gradients for input x and upstream
// gradient dout, and returns the gradient w.r.t. x.
func (l *linear) backward(x, dout []float64) []float64 {
	dx := make([]float64, l.W.Cols)
	for j := 0; j < l.W.Rows; j++ {
		g := dout[j]
		if g == 0 {
			continue
		}
		row := l.W.Row(j)
		gRow := l.W.GradRow(j)
		for k := range x {
			gRow[k] += g * x[k]
			dx[k] += g * row[k]
		}
		l.B.G[j] += g
	}
	return dx
}

// FusionScorer is the multimodal NeuMF model: two independent
// ID-embedding pairs (a deep pathway and a shallow interaction
// pathway), content projections for image and text vectors, per-pathway
// fusion layers, a configurable MLP tower and a final affine + sigmoid.
type FusionScorer struct {
	cfg Config

	embUserMLP *tensor
	embItemMLP *tensor
	embUserMF  *tensor
	embItemMF  *tensor

	fcImage   *linear
	fcText    *linear
	fusionMLP *linear
	fusionMF  *linear
	mlpStack  []*linear
	affine    *linear
}

// NewFusionScorer builds the model from an immutable config. With
// WeightInitGaussian set, every weight is drawn from N(0, 0.01^2);
// otherwise weights start at zero (loaded checkpoints overwrite them
// either way).
func NewFusionScorer(cfg Config, rng *rand.Rand) (*FusionScorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.NumUsers <= 0 || cfg.NumItems <= 0 {
		return nil, fmt.Errorf("user/item counts must be injected before model construction, got users=%d items=%d", cfg.NumUsers, cfg.NumItems)
	}

	fusionInMLP := cfg.LatentDimMLP + cfg.ImageEmbDim + cfg.TextEmbDim
	fusionInMF := cfg.LatentDimMF + cfg.ImageEmbDim + cfg.TextEmbDim

	m := &FusionScorer{
		cfg:        cfg,
		embUserMLP: newTensor(cfg.NumUsers, cfg.LatentDimMLP),
		embItemMLP: newTensor(cfg.NumItems, cfg.LatentDimMLP),
		embUserMF:  newTensor(cfg.NumUsers, cfg.LatentDimMF),
		embItemMF:  newTensor(cfg.NumItems, cfg.LatentDimMF),
		fcImage:    newLinear(cfg.ImageFeatureDim, cfg.ImageEmbDim),
		fcText:     newLinear(cfg.TextFeatureDim, cfg.TextEmbDim),
		fusionMLP:  newLinear(fusionInMLP, cfg.LatentDimMLP),
		fusionMF:   newLinear(fusionInMF, cfg.LatentDimMF),
	}

	in := cfg.LatentDimMLP * 2
	for _, width := range cfg.MLPLayers {
		m.mlpStack = append(m.mlpStack, newLinear(in, width))
		in = width
	}
	m.affine = newLinear(in+cfg.LatentDimMF, 1)

	if cfg.WeightInitGaussian {
		for _, p := range m.parameters() {
			p.initGaussian(rng, gaussianStdDev)
		}
	}

	return m, nil
}

// Config returns the configuration the model was built with.
func (m *FusionScorer) Config() Config {
	return m.cfg
}

// parameters returns every trainable tensor in a stable order; the
// optimizer state is keyed by position in this list.
func (m *FusionScorer) parameters() []*tensor {
	params := []*tensor{
		m.embUserMLP, m.embItemMLP, m.embUserMF, m.embItemMF,
		m.fcImage.W, m.fcImage.B,
		m.fcText.W, m.fcText.B,
		m.fusionMLP.W, m.fusionMLP.B,
		m.fusionMF.W, m.fusionMF.B,
	}
	for _, l := range m.mlpStack {
		params = append(params, l.W, l.B)
	}
	params = append(params, m.affine.W, m.affine.B)
	return params
}

func (m *FusionScorer) zeroGrad() {
	for _, p := range m.parameters() {
		p.zeroGrad()
	}
}

// forwardCache holds the activations of one example, for backprop.
type forwardCache struct {
	user, item int
	image      []float64
	text       []float64

	imageEmb []float64 // post-ReLU
	textEmb  []float64 // post-ReLU

	fusedMLPIn []float64
	fusedMLP   []float64 // post-ReLU
	mlpInputs  [][]float64
	mlpOut     []float64

	fusedMFIn []float64
	fusedMF   []float64 // post-ReLU
	mfVec     []float64

	finalIn []float64
	score   float64
}

func reluInPlace(v []float64) {
	for i := range v {
		v[i] = relu(v[i])
	}
}

// forwardOne scores a single (user, item, image, text) example and
// fills the cache when one is supplied.
func (m *FusionScorer) forwardOne(user, item int, image, text []float64, cache *forwardCache) (float64, error) {
	if user < 0 || user >= m.cfg.NumUsers {
		return 0, fmt.Errorf("user index %d out of range [0,%d)", user, m.cfg.NumUsers)
	}
	if item < 0 || item >= m.cfg.NumItems {
		return 0, fmt.Errorf("item index %d out of range [0,%d)", item, m.cfg.NumItems)
	}
	if len(image) != m.cfg.ImageFeatureDim {
		return 0, fmt.Errorf("image vector has dim %d, want %d", len(image), m.cfg.ImageFeatureDim)
	}
	if len(text) != m.cfg.TextFeatureDim {
		return 0, fmt.Errorf("text vector has dim %d, want %d", len(text), m.cfg.TextFeatureDim)
	}

	imageEmb := m.fcImage.forward(image)
	reluInPlace(imageEmb)
	textEmb := m.fcText.forward(text)
	reluInPlace(textEmb)

	// Deep pathway: fuse item embedding with content, concat with user.
	userMLP := m.embUserMLP.Row(user)
	itemMLP := m.embItemMLP.Row(item)
	fusedMLPIn := concat(itemMLP, imageEmb, textEmb)
	fusedMLP := m.fusionMLP.forward(fusedMLPIn)
	reluInPlace(fusedMLP)

	vec := concat(userMLP, fusedMLP)
	mlpInputs := make([][]float64, 0, len(m.mlpStack))
	for _, l := range m.mlpStack {
		mlpInputs = append(mlpInputs, vec)
		vec = l.forward(vec)
		reluInPlace(vec)
	}
	mlpOut := vec

	// Shallow pathway: fused item embedding times user embedding.
	userMF := m.embUserMF.Row(user)
	itemMF := m.embItemMF.Row(item)
	fusedMFIn := concat(itemMF, imageEmb, textEmb)
	fusedMF := m.fusionMF.forward(fusedMFIn)
	reluInPlace(fusedMF)

	mfVec := make([]float64, len(fusedMF))
	for i := range mfVec {
		mfVec[i] = userMF[i] * fusedMF[i]
	}

	finalIn := concat(mlpOut, mfVec)
	logit := m.affine.forward(finalIn)[0]
	score := sigmoid(logit)

	if cache != nil {
		cache.user = user
		cache.item = item
		cache.image = image
		cache.text = text
		cache.imageEmb = imageEmb
		cache.textEmb = textEmb
		cache.fusedMLPIn = fusedMLPIn
		cache.fusedMLP = fusedMLP
		cache.mlpInputs = mlpInputs
		cache.mlpOut = mlpOut
		cache.fusedMFIn = fusedMFIn
		cache.fusedMF = fusedMF
		cache.mfVec = mfVec
		cache.finalIn = finalIn
		cache.score = score
	}

	return score, nil
}

// backwardOne accumulates gradients for one example given dL/dlogit
// (for sigmoid + BCE this is score minus target, already divided by the
// batch size for a mean reduction).
func (m *FusionScorer) backwardOne(c *forwardCache, dLogit float64) {
	dFinal := m.affine.backward(c.finalIn, []float64{dLogit})

	dMLPOut := dFinal[:len(c.mlpOut)]
	dMFVec := dFinal[len(c.mlpOut):]

	// Shallow pathway.
	userMF := m.embUserMF.Row(c.user)
	dUserMF := m.embUserMF.GradRow(c.user)
	dFusedMF := make([]float64, len(c.fusedMF))
	for i := range dMFVec {
		dUserMF[i] += dMFVec[i] * c.fusedMF[i]
		dFusedMF[i] = dMFVec[i] * userMF[i]
	}
	maskReluGrad(dFusedMF, c.fusedMF)
	dFusedMFIn := m.fusionMF.backward(c.fusedMFIn, dFusedMF)

	// Deep pathway, walked backwards through the tower.
	dVec := append([]float64(nil), dMLPOut...)
	for i := len(m.mlpStack) - 1; i >= 0; i-- {
		var act []float64
		if i == len(m.mlpStack)-1 {
			act = c.mlpOut
		} else {
			act = c.mlpInputs[i+1]
		}
		maskReluGrad(dVec, act)
		dVec = m.mlpStack[i].backward(c.mlpInputs[i], dVec)
	}

	dUserMLPVec := dVec[:m.cfg.LatentDimMLP]
	dFusedMLP := append([]float64(nil), dVec[m.cfg.LatentDimMLP:]...)
	dUserMLP := m.embUserMLP.GradRow(c.user)
	for i := range dUserMLPVec {
		dUserMLP[i] += dUserMLPVec[i]
	}
	maskReluGrad(dFusedMLP, c.fusedMLP)
	dFusedMLPIn := m.fusionMLP.backward(c.fusedMLPIn, dFusedMLP)

	// Split the fusion-input gradients back into item embedding and
	// content-projection parts. Content projections feed both pathways,
	// so their gradients accumulate from each.
	dMLP := m.cfg.LatentDimMLP
	dMF := m.cfg.LatentDimMF
	imgDim := m.cfg.ImageEmbDim

	dItemMLP := m.embItemMLP.GradRow(c.item)
	for i := 0; i < dMLP; i++ {
		dItemMLP[i] += dFusedMLPIn[i]
	}
	dItemMF := m.embItemMF.GradRow(c.item)
	for i := 0; i < dMF; i++ {
		dItemMF[i] += dFusedMFIn[i]
	}

	dImageEmb := make([]float64, imgDim)
	dTextEmb := make([]float64, m.cfg.TextEmbDim)
	for i := 0; i < imgDim; i++ {
		dImageEmb[i] = dFusedMLPIn[dMLP+i] + dFusedMFIn[dMF+i]
	}
	for i := 0; i < m.cfg.TextEmbDim; i++ {
		dTextEmb[i] = dFusedMLPIn[dMLP+imgDim+i] + dFusedMFIn[dMF+imgDim+i]
	}

	maskReluGrad(dImageEmb, c.imageEmb)
	m.fcImage.backward(c.image, dImageEmb)
	maskReluGrad(dTextEmb, c.textEmb)
	m.fcText.backward(c.text, dTextEmb)
}

// maskReluGrad zeroes gradient entries where the activation was clipped.
func maskReluGrad(grad, activation []float64) {
	for i := range grad {
		if activation[i] <= 0 {
			grad[i] = 0
		}
	}
}

// Score runs the model over a batch without touching gradients. Output
// values are sigmoid probabilities in (0,1).
func (m *FusionScorer) Score(users, items []int, image, text [][]float64) ([]float64, error) {
	if len(users) != len(items) || len(users) != len(image) || len(users) != len(text) {
		return nil, fmt.Errorf("batch length mismatch: users=%d items=%d image=%d text=%d",
			len(users), len(items), len(image), len(text))
	}
	scores := make([]float64, len(users))
	for i := range users {
		s, err := m.forwardOne(users[i], items[i], image[i], text[i], nil)
		if err != nil {
			return nil, err
		}
		scores[i] = s
	}
	return scores, nil
}

// ScoreOne scores a single candidate.
func (m *FusionScorer) ScoreOne(user, item int, image, text []float64) (float64, error) {
	return m.forwardOne(user, item, image, text, nil)
}

// KnowsUser reports whether the user index was inside the embedding
// tables when the model was trained.
func (m *FusionScorer) KnowsUser(userIndex int) bool {
	return userIndex >= 0 && userIndex < m.cfg.NumUsers
}

func concat(parts ...[]float64) []float64 {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]float64, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
