package params_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	worker "github.com/toyota-m2k/android-worker"
	"github.com/toyota-m2k/android-worker/params"
)

func codecs() []params.Codec {
	return []params.Codec{&params.JSONCodec{}, &params.MsgpackCodec{}}
}

func TestRoundTrip_AllTypes(t *testing.T) {
	for _, codec := range codecs() {
		t.Run(codec.Name(), func(t *testing.T) {
			d := params.New(codec)
			require.NoError(t, d.PutBool("b", true))
			require.NoError(t, d.PutInt32("i32", -42))
			require.NoError(t, d.PutInt64("i64", 1<<40))
			require.NoError(t, d.PutFloat32("f32", 1.5))
			require.NoError(t, d.PutFloat64("f64", 2.25))
			require.NoError(t, d.PutString("s", "hello"))
			require.NoError(t, d.PutBoolSlice("bs", []bool{true, false}))
			require.NoError(t, d.PutInt32Slice("i32s", []int32{1, -2, 3}))
			require.NoError(t, d.PutInt64Slice("i64s", []int64{1 << 40, 2}))
			require.NoError(t, d.PutFloat32Slice("f32s", []float32{0.5, 1.5}))
			require.NoError(t, d.PutFloat64Slice("f64s", []float64{0.25, 2.5}))
			require.NoError(t, d.PutStringSlice("ss", []string{"a", "b"}))

			data, err := d.Seal()
			require.NoError(t, err)

			r, err := params.Parse(data, codec)
			require.NoError(t, err)

			assert.Equal(t, true, r.Bool("b", false))
			assert.Equal(t, int32(-42), r.Int32("i32", 0))
			assert.Equal(t, int64(1<<40), r.Int64("i64", 0))
			assert.Equal(t, float32(1.5), r.Float32("f32", 0))
			assert.Equal(t, 2.25, r.Float64("f64", 0))
			assert.Equal(t, "hello", r.String("s", ""))
			assert.Equal(t, []bool{true, false}, r.BoolSlice("bs", nil))
			assert.Equal(t, []int32{1, -2, 3}, r.Int32Slice("i32s", nil))
			assert.Equal(t, []int64{1 << 40, 2}, r.Int64Slice("i64s", nil))
			assert.Equal(t, []float32{0.5, 1.5}, r.Float32Slice("f32s", nil))
			assert.Equal(t, []float64{0.25, 2.5}, r.Float64Slice("f64s", nil))
			assert.Equal(t, []string{"a", "b"}, r.StringSlice("ss", nil))
		})
	}
}

func TestRead_AbsentReturnsDefault(t *testing.T) {
	for _, codec := range codecs() {
		t.Run(codec.Name(), func(t *testing.T) {
			d := params.New(codec)
			require.NoError(t, d.PutString("present", "x"))

			data, err := d.Seal()
			require.NoError(t, err)
			r, err := params.Parse(data, codec)
			require.NoError(t, err)

			assert.Equal(t, "fallback", r.String("missing", "fallback"))
			assert.Equal(t, int32(7), r.Int32("missing", 7))
			assert.Equal(t, []string{"d"}, r.StringSlice("missing", []string{"d"}))
		})
	}
}

func TestRead_TypeMismatchReturnsDefault(t *testing.T) {
	codec := &params.MsgpackCodec{}
	d := params.New(codec)
	require.NoError(t, d.PutString("s", "not a number"))
	require.NoError(t, d.PutInt64("i", 9))

	data, err := d.Seal()
	require.NoError(t, err)
	r, err := params.Parse(data, codec)
	require.NoError(t, err)

	// Declared type tags don't match the requested type.
	assert.Equal(t, int32(5), r.Int32("s", 5))
	assert.Equal(t, int32(5), r.Int32("i", 5), "i64 value must not read as i32")
	assert.Equal(t, "d", r.String("i", "d"))
}

func TestRead_ProducerMode(t *testing.T) {
	d := params.New(&params.JSONCodec{})
	require.NoError(t, d.PutInt64("n", 99))

	// Reads work before Seal, from the in-memory map.
	assert.Equal(t, int64(99), d.Int64("n", 0))
	assert.Equal(t, int64(1), d.Int64("missing", 1))
}

func TestPut_ConsumerModeFails(t *testing.T) {
	codec := &params.JSONCodec{}
	d := params.New(codec)
	require.NoError(t, d.PutBool("b", true))
	data, err := d.Seal()
	require.NoError(t, err)

	r, err := params.Parse(data, codec)
	require.NoError(t, err)

	err = r.PutString("x", "y")
	require.ErrorIs(t, err, worker.ErrDescriptorSealed)

	_, err = r.Seal()
	require.ErrorIs(t, err, worker.ErrDescriptorSealed)
}

func TestPut_AfterSealFails(t *testing.T) {
	d := params.New(&params.MsgpackCodec{})
	require.NoError(t, d.PutBool("b", true))
	_, err := d.Seal()
	require.NoError(t, err)

	err = d.PutBool("c", false)
	require.ErrorIs(t, err, worker.ErrDescriptorSealed)
}

func TestPut_UnsupportedType(t *testing.T) {
	d := params.New(&params.JSONCodec{})
	err := d.Put("bad", map[string]int{"x": 1})
	require.ErrorIs(t, err, worker.ErrUnsupportedType)

	err = d.Put("bad", uint16(3))
	require.ErrorIs(t, err, worker.ErrUnsupportedType)
}

func TestNames_OrderPreserved(t *testing.T) {
	codec := &params.MsgpackCodec{}
	d := params.New(codec)
	names := []string{"z", "a", "m", "b"}
	for i, n := range names {
		require.NoError(t, d.PutInt32(n, int32(i)))
	}

	data, err := d.Seal()
	require.NoError(t, err)
	r, err := params.Parse(data, codec)
	require.NoError(t, err)

	assert.Equal(t, names, r.Names())
}

func TestPut_OverwriteKeepsPosition(t *testing.T) {
	d := params.New(&params.JSONCodec{})
	require.NoError(t, d.PutInt32("a", 1))
	require.NoError(t, d.PutInt32("b", 2))
	require.NoError(t, d.PutInt32("a", 3))

	assert.Equal(t, []string{"a", "b"}, d.Names())
	assert.Equal(t, int32(3), d.Int32("a", 0))
}

func TestParse_UnknownTypeTag(t *testing.T) {
	codec := &params.JSONCodec{}
	data, err := codec.Encode([]params.Pair{{Name: "x", Type: "blob", Value: "??"}})
	require.NoError(t, err)

	_, err = params.Parse(data, codec)
	require.ErrorIs(t, err, worker.ErrUnsupportedType)
}

func TestParse_Garbage(t *testing.T) {
	for _, codec := range codecs() {
		_, err := params.Parse([]byte{0xff, 0x00, 0x13}, codec)
		assert.Error(t, err, codec.Name())
	}
}
