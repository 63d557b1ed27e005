package checkout

import "context"

// Purchase runs the buyer's mint action: it refuses when the balance is short,
// mints directly when nothing needs approving and otherwise takes the bundled
// approval path.
func (s *Session) Purchase(ctx context.Context) error {
	flow, err := s.prepare(ctx)
	if err != nil {
		return err
	}
	return flow(ctx)
}

func (s *Session) prepare(ctx context.Context) (func(context.Context) error, error) {
	request := s.Request()
	quantity, method := request.Quantity, request.Method

	if err := s.refreshRate(ctx); err != nil && method == Native {
		return nil, err
	}

	affordable, err := s.CheckAffordability(ctx, method)
	if err != nil {
		return nil, err
	}
	if !affordable {
		return nil, ErrInsufficientBalance
	}

	run := func(ctx context.Context) error {
		return s.runMint(ctx, quantity, method)
	}

	if method == Stablecoin {
		allowance, err := s.refreshAllowance(ctx)
		if err != nil {
			return nil, err
		}
		quote, err := s.Request().Quote(quantity, Stablecoin)
		if err != nil {
			return nil, err
		}
		if allowance.Cmp(quote.MinorUnits()) < 0 {
			run = func(ctx context.Context) error {
				return s.runBundled(ctx, quantity)
			}
		}
	}

	if err := s.begin(quantity, method); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		defer s.end()
		return run(ctx)
	}, nil
}
