// Copyright (c) 2019, AT&T Intellectual Property. All rights reserved.
//
// Copyright (c) 2016-2017 by Brocade Communications Systems, Inc.
// All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package session

import (
	"github.com/danos/mgmterror"
)

func lockDenied(owner string) error {
	err := mgmterror.NewLockDeniedError(owner)
	err.Message = "node is locked by " + owner
	return err
}

func nilSessionMgrError() error {
	err := mgmterror.NewOperationFailedApplicationError()
	err.Message = "cannot get a session on a nil manager"
	return err
}

func sessTermError() error {
	err := mgmterror.NewOperationFailedApplicationError()
	err.Message = "session terminated"
	return err
}

func sessExistsError(sid string) error {
	err := mgmterror.NewOperationFailedApplicationError()
	err.Message = "session " + sid + " already exists"
	return err
}
