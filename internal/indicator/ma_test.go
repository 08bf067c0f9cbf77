package indicator

import (
	"testing"

	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/stretchr/testify/suite"
)

type MAUnitTestSuite struct {
	suite.Suite
}

func TestMAUnitSuite(t *testing.T) {
	suite.Run(t, new(MAUnitTestSuite))
}

func (suite *MAUnitTestSuite) TestNewMA() {
	ma := NewMA()
	suite.NotNil(ma)

	// Cast to *MA to check default values
	maImpl := ma.(*MA)
	suite.Equal(20, maImpl.period)
	suite.Equal(types.IndicatorTypeMA, ma.Name())
}

func (suite *MAUnitTestSuite) TestConfig() {
	ma := NewMA()
	maImpl := ma.(*MA)

	suite.NoError(ma.Config(10))
	suite.Equal(10, maImpl.period)

	// MA supports float64 conversion
	suite.NoError(ma.Config(15.0))
	suite.Equal(15, maImpl.period)

	err := ma.Config()
	suite.Error(err)
	suite.Contains(err.Error(), "expects 1 parameter")

	err = ma.Config("invalid")
	suite.Error(err)
	suite.Contains(err.Error(), "invalid type for period")

	err = ma.Config(0)
	suite.Error(err)
	suite.Contains(err.Error(), "must be a positive integer")
}

func (suite *MAUnitTestSuite) TestAddRollsWindow() {
	ma := NewMA()
	suite.Require().NoError(ma.Config(3))

	ma.Add(1)
	suite.False(ma.Ready())
	suite.Equal(1.0, ma.Value())

	ma.Add(2)
	ma.Add(3)
	suite.True(ma.Ready())
	suite.Equal(2.0, ma.Value())

	ma.Add(4)
	suite.Equal(3.0, ma.Value())
}

func (suite *MAUnitTestSuite) TestUpdateReplacesLast() {
	ma := NewMA()
	suite.Require().NoError(ma.Config(2))

	ma.Add(1)
	ma.Add(3)
	suite.Equal(2.0, ma.Value())

	ma.Update(5)
	suite.Equal(3.0, ma.Value())
	suite.Equal(2, ma.Len())
}

func (suite *MAUnitTestSuite) TestCrossed() {
	ma := NewMA()
	suite.Require().NoError(ma.Config(1))

	ma.Add(9)
	suite.False(ma.Crossed(10))

	ma.Add(11)
	suite.True(ma.Crossed(10))

	ma.Add(12)
	suite.False(ma.Crossed(10))

	ma.Add(8)
	suite.True(ma.Crossed(10))
}
